//go:build linux
// +build linux

package tcpsrv

import (
	"errors"
	"github.com/fzft/go-wcam/list"
	"github.com/fzft/go-wcam/reactor"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrSendPending = errors.New("tcpsrv: previous send not complete")
	ErrClosed      = errors.New("tcpsrv: connection closed")
)

// Conn is one accepted client. At most one of its read and write events is
// registered: it is either receiving a request or sending the response.
type Conn struct {
	id   uuid.UUID
	fd   int
	peer *net.TCPAddr
	srv  *Server

	lastActive atomic.Int64

	rx *reactor.Event
	tx *reactor.Event

	// mu is held around hook calls and the write handler, and by teardown, so a
	// reaper eviction never closes the fd under a running callback.
	mu     sync.Mutex
	out    []byte
	closed bool
	ctx    any

	// guarded by the server's connection set
	node *list.ListNode[*Conn]
}

func newConn(s *Server, fd int, sa unix.Sockaddr) *Conn {
	c := &Conn{
		id:   uuid.New(),
		fd:   fd,
		peer: sockaddrToTCP(sa),
		srv:  s,
	}
	c.rx = reactor.NewEvent(fd).OnRead(reactor.HandlerFunc(func(int) { s.handleRead(c) }))
	c.tx = reactor.NewEvent(fd).OnWrite(reactor.HandlerFunc(func(int) { s.handleWrite(c) }))
	c.touch()
	return c
}

func (c *Conn) ID() string {
	return c.id.String()
}

func (c *Conn) Fd() int {
	return c.fd
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.peer
}

// Context returns the protocol state attached by OnConnect.
func (c *Conn) Context() any {
	return c.ctx
}

func (c *Conn) SetContext(ctx any) {
	c.ctx = ctx
}

func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// Read reads from the socket. Call it from OnReceive only.
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.touch()
	}
	return n, nil
}

// Send queues buf as the response and switches the connection from read to write
// interest. buf must stay untouched until the send completes, which is when the
// connection reads again. Call it from OnReceive only.
func (c *Conn) Send(buf []byte) error {
	if c.closed {
		return ErrClosed
	}
	if c.out != nil {
		return ErrSendPending
	}
	if len(buf) == 0 {
		return nil
	}

	loop := c.srv.loop
	if err := loop.Unregister(c.rx); err != nil {
		return err
	}
	c.out = buf
	if err := loop.Register(c.tx); err != nil {
		c.out = nil
		return multierr.Append(err, loop.Register(c.rx))
	}
	return nil
}

// Sending reports whether a response is in flight.
func (c *Conn) Sending() bool {
	return c.out != nil
}
