//go:build linux
// +build linux

package tcpsrv

import (
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/metrics"
	"github.com/fzft/go-wcam/reactor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"net"
	"os"
	"sync"
	"time"
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultCheckInterval = time.Second
	DefaultBacklog       = 128
)

// Hooks is the protocol plugged into the server. OnConnect and OnReceive run on the
// event loop goroutine. OnDisconnect runs on whichever goroutine tears the
// connection down. OnReceive and OnDisconnect hold the connection lock.
type Hooks interface {
	// OnConnect prepares per connection state. An error rejects the connection.
	OnConnect(c *Conn) error
	// OnReceive consumes readable bytes. Zero bytes or a non temporary error
	// tears the connection down.
	OnReceive(c *Conn) (int, error)
	OnDisconnect(c *Conn)
}

type Config struct {
	// Port 0 picks an ephemeral port, see Addr.
	Port          int
	Timeout       time.Duration
	CheckInterval time.Duration
	Backlog       int
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server accepts connections on one port and evicts the idle ones.
type Server struct {
	loop    *reactor.EventLoop
	hooks   Hooks
	cfg     Config
	metrics *metrics.Metrics

	fd   int
	ev   *reactor.Event
	addr *net.TCPAddr

	set *connSet

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func Listen(loop *reactor.EventLoop, cfg Config, hooks Hooks, opts ...Option) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("tcpsrv: bad port %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}

	s := &Server{
		loop:  loop,
		hooks: hooks,
		cfg:   cfg,
		set:   newConnSet(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	fd, err := listenTCP(cfg.Port, cfg.Backlog)
	if err != nil {
		return nil, err
	}
	s.fd = fd

	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("getsockname", err)
	}
	s.addr = sockaddrToTCP(sa)

	s.ev = reactor.NewEvent(fd).OnRead(reactor.HandlerFunc(s.handleAccept))
	if err := loop.Register(s.ev); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcpsrv: register listener: %w", err)
	}

	go s.reap()

	log.Logger.Info("tcp server listening", zap.Int("port", s.addr.Port),
		zap.Duration("timeout", cfg.Timeout), zap.Duration("check", cfg.CheckInterval))
	return s, nil
}

func listenTCP(port, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("listen", err)
	}
	return fd, nil
}

// Addr is the bound address, useful when Port was 0.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Len is the number of live connections.
func (s *Server) Len() int {
	return s.set.len()
}

// Conns returns the live connections, oldest first.
func (s *Server) Conns() []*Conn {
	return s.set.snapshot()
}

// handleAccept takes one pending connection per readiness notification.
func (s *Server) handleAccept(fd int) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		if !isAcceptRetryable(err) {
			log.Logger.Error("accept error", zap.Error(err))
		}
		return
	}

	if err := unix.SetNonblock(nfd, true); err != nil {
		log.Logger.Error("set nonblock error", zap.Int("fd", nfd), zap.Error(err))
		unix.Close(nfd)
		return
	}
	unix.CloseOnExec(nfd)

	c := newConn(s, nfd, sa)
	if err := s.hooks.OnConnect(c); err != nil {
		log.Logger.Warn("connection rejected", zap.Int("fd", nfd), zap.Error(err))
		unix.Close(nfd)
		return
	}

	if err := s.loop.Register(c.rx); err != nil {
		if errors.Is(err, reactor.ErrCapacity) {
			s.metrics.CapacityRejected()
		}
		log.Logger.Warn("register read error", zap.Int("fd", nfd), zap.Error(err))
		s.hooks.OnDisconnect(c)
		unix.Close(nfd)
		return
	}

	if !s.set.add(c) {
		// Close drained the set while this accept was in flight
		s.release(c, "shutdown")
		return
	}
	s.metrics.ConnAccepted()
	log.Logger.Debug("new connection", zap.Int("fd", nfd), zap.String("id", c.ID()),
		zap.Stringer("peer", c.peer))
}

func (s *Server) handleRead(c *Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	n, err := s.hooks.OnReceive(c)
	c.mu.Unlock()

	switch {
	case err != nil && IsTemporary(err):
	case err != nil:
		log.Logger.Debug("receive error", zap.String("id", c.ID()), zap.Error(err))
		s.teardown(c, "error")
	case n <= 0:
		s.teardown(c, "peer")
	}
}

func (s *Server) handleWrite(c *Conn) {
	c.mu.Lock()
	if c.closed || c.out == nil {
		c.mu.Unlock()
		return
	}

	n, err := unix.Write(c.fd, c.out)
	if err != nil {
		c.mu.Unlock()
		if IsTemporary(err) {
			return
		}
		log.Logger.Debug("write error", zap.String("id", c.ID()), zap.Error(err))
		s.teardown(c, "error")
		return
	}

	c.touch()
	s.metrics.Sent(n)
	c.out = c.out[n:]
	if len(c.out) > 0 {
		c.mu.Unlock()
		return
	}

	// all written, back to receiving
	c.out = nil
	err = s.loop.Unregister(c.tx)
	if err == nil {
		err = s.loop.Register(c.rx)
	}
	c.mu.Unlock()

	if err != nil {
		log.Logger.Warn("failed to resume reading", zap.String("id", c.ID()), zap.Error(err))
		s.teardown(c, "error")
	}
}

// teardown removes c from the set and releases it. Only the caller that
// removed it does the release, so concurrent teardowns are harmless.
func (s *Server) teardown(c *Conn, reason string) {
	if s.set.remove(c) {
		s.release(c, reason)
	}
}

func (s *Server) release(c *Conn, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	s.hooks.OnDisconnect(c)
	err := multierr.Combine(
		s.loop.Unregister(c.rx),
		s.loop.Unregister(c.tx),
		os.NewSyscallError("close", unix.Close(c.fd)),
	)
	c.out = nil

	s.metrics.ConnClosed(reason)
	if err != nil {
		log.Logger.Warn("connection release error", zap.String("id", c.ID()), zap.Error(err))
	}
	log.Logger.Debug("connection closed", zap.String("id", c.ID()), zap.String("reason", reason))
}

// reap evicts connections idle for at least the timeout, once per check interval.
func (s *Server) reap() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			for _, c := range s.set.expired(now, s.cfg.Timeout) {
				log.Logger.Info("evicting idle connection", zap.String("id", c.ID()),
					zap.Stringer("peer", c.peer), zap.Time("last_active", c.LastActive()))
				s.release(c, "idle")
			}
		}
	}
}

// Close stops the reaper, closes the listener and tears down every connection.
// It may run while the loop is still dispatching; a connection accepted
// concurrently is released instead of joining the set.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done

		err = multierr.Combine(
			s.loop.Unregister(s.ev),
			os.NewSyscallError("close", closeFd(s.fd)),
		)
		for _, c := range s.set.drain() {
			s.release(c, "shutdown")
		}
	})
	return err
}
