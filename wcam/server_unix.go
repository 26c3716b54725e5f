//go:build linux
// +build linux

package wcam

import (
	"fmt"
	"github.com/fzft/go-wcam/config"
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/metrics"
	"github.com/fzft/go-wcam/pool"
	"github.com/fzft/go-wcam/proto"
	"github.com/fzft/go-wcam/reactor"
	"github.com/fzft/go-wcam/tcpsrv"
	"github.com/fzft/go-wcam/video"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"net"
	"sync"
)

type options struct {
	metrics *metrics.Metrics
	display video.Display
}

type Option func(*options)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDisplay previews captured frames on d. The server owns d from then on.
func WithDisplay(d video.Display) Option {
	return func(o *options) { o.display = d }
}

// Server is the assembled device front-end: event loop, worker pool, capture
// pipeline and tcp server.
type Server struct {
	loop  *reactor.EventLoop
	pool  *pool.Pool
	video *video.Video
	tcp   *tcpsrv.Server

	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// New builds the server and starts capturing. On failure everything created so
// far is released in reverse order.
func New(cfg *config.Config, dev video.Device, opts ...Option) (srv *Server, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	m := o.metrics

	s := &Server{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.release())
			srv = nil
		}
	}()

	var loop *reactor.EventLoop
	loop, err = reactor.New(cfg.MaxAppEvent, reactor.WithTick(func() { m.LoopEvents(loop.Len()) }))
	if err != nil {
		if o.display != nil {
			err = multierr.Append(err, o.display.Close())
		}
		return nil, fmt.Errorf("wcam: event loop: %w", err)
	}
	s.loop = loop
	s.closers = append(s.closers, loop.Close)

	s.pool = pool.New(cfg.ThreadInPool, pool.WithObserver(m.PoolPending))
	s.closers = append(s.closers, func() error {
		err := s.pool.Shutdown()
		if n := s.pool.Discarded(); n > 0 {
			log.Logger.Info("discarded queued jobs", zap.Int("count", n))
		}
		return err
	})

	vopts := []video.Option{video.WithPublishHook(m.Published)}
	if o.display != nil {
		vopts = append(vopts, video.WithDisplay(o.display))
	}
	s.video, err = video.New(dev, s.pool, vopts...)
	if err != nil {
		if o.display != nil {
			err = multierr.Append(err, o.display.Close())
		}
		return nil, fmt.Errorf("wcam: video: %w", err)
	}
	s.closers = append(s.closers, s.video.Close)

	p := NewProtocol(m)
	p.Handle(proto.SubsysSys, NewSysHandler(cfg.Version))
	p.Handle(proto.SubsysVideo, NewVideoHandler(s.video))

	s.tcp, err = tcpsrv.Listen(loop, tcpsrv.Config{
		Port:          cfg.SrvPort,
		Timeout:       cfg.Timeout(),
		CheckInterval: cfg.TimeoutCheck(),
	}, p, tcpsrv.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("wcam: listen: %w", err)
	}
	s.closers = append(s.closers, s.tcp.Close)

	if err = s.video.Start(); err != nil {
		return nil, fmt.Errorf("wcam: start capture: %w", err)
	}

	size := s.video.FrameSize()
	log.Logger.Info("server ready", zap.String("version", cfg.Version),
		zap.Stringer("addr", s.tcp.Addr()), zap.Stringer("format", dev.Format()),
		zap.Uint32("width", size.Width), zap.Uint32("height", size.Height))
	return s, nil
}

// Addr is the address clients connect to.
func (s *Server) Addr() net.Addr {
	return s.tcp.Addr()
}

// Run serves until Shutdown.
func (s *Server) Run() error {
	return s.loop.Run()
}

// Shutdown makes Run return at its next poll boundary.
func (s *Server) Shutdown() {
	s.loop.Stop()
}

// Close releases everything in reverse order of creation. Call it after Run returned.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.release()
	})
	return s.closeErr
}

func (s *Server) release() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	s.closers = nil
	return err
}
