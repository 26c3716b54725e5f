//go:build linux
// +build linux

package reactor

import (
	"fmt"
	"github.com/fzft/go-wcam/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

// https://copyconstruct.medium.com/the-method-to-epolls-madness-d9d2d6378642

const (
	DefaultCapacity    = 512
	DefaultPollTimeout = time.Second

	readEvents  = unix.EPOLLIN | unix.EPOLLPRI
	writeEvents = unix.EPOLLOUT
	errorEvents = unix.EPOLLERR | unix.EPOLLHUP
)

type Option func(*EventLoop)

// WithPollTimeout bounds a single wait. Stop is observed at this granularity
// when the wakeup write fails.
func WithPollTimeout(d time.Duration) Option {
	return func(l *EventLoop) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithTick installs a function run on the loop goroutine after every poll cycle.
func WithTick(fn func()) Option {
	return func(l *EventLoop) {
		l.tick = fn
	}
}

// EventLoop is a level triggered epoll reactor. Register and Unregister are safe
// from any goroutine; handlers always run on the goroutine inside Run.
type EventLoop struct {
	epfd int
	efd  int

	mu       sync.Mutex
	events   map[int]*Event
	capacity int
	count    int

	timeout time.Duration
	tick    func()

	running atomic.Bool
	stopped atomic.Bool
	closed  atomic.Bool
}

func New(capacity int, opts ...Option) (*EventLoop, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}

	// the wakeup fd is internal and not counted against capacity
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Fd: int32(efd), Events: readEvents}); err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl add", err)
	}

	l := &EventLoop{
		epfd:     epfd,
		efd:      efd,
		events:   make(map[int]*Event),
		capacity: capacity,
		timeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func epollMask(i Interest) uint32 {
	var mask uint32
	if i&Readable != 0 {
		mask |= readEvents
	}
	if i&Writable != 0 {
		mask |= writeEvents
	}
	if i&Errored != 0 {
		mask |= unix.EPOLLERR
	}
	return mask
}

// Register adds ev to the epoll set, or modifies its interest if it is already there.
// A new registration beyond capacity fails with ErrCapacity and changes nothing.
func (l *EventLoop) Register(ev *Event) error {
	if l.closed.Load() {
		return ErrClosed
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	epev := &unix.EpollEvent{Fd: int32(ev.fd), Events: epollMask(ev.interest)}

	if ev.registered {
		return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, ev.fd, epev))
	}

	if other, ok := l.events[ev.fd]; ok && other != ev {
		return fmt.Errorf("%w: fd %d", ErrFdInUse, ev.fd)
	}
	if l.count >= l.capacity {
		return ErrCapacity
	}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, ev.fd, epev); err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}

	ev.registered = true
	l.events[ev.fd] = ev
	l.count++
	return nil
}

// Unregister removes ev from the epoll set. Unknown events are ignored.
func (l *EventLoop) Unregister(ev *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !ev.registered {
		return nil
	}

	ev.registered = false
	delete(l.events, ev.fd)
	l.count--

	if l.closed.Load() {
		return nil
	}
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, ev.fd, nil))
}

// Registered reports whether ev is currently in the epoll set.
func (l *EventLoop) Registered(ev *Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ev.registered
}

// Len is the number of registered events.
func (l *EventLoop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *EventLoop) Cap() int {
	return l.capacity
}

// Run waits and dispatches until Stop is called.
func (l *EventLoop) Run() error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	events := make([]unix.EpollEvent, l.capacity+1)
	msec := int(l.timeout / time.Millisecond)

	for !l.stopped.Load() {
		// level triggered, n == 0 means the wait timed out
		n, err := unix.EpollWait(l.epfd, events, msec)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Logger.Error("epoll wait error", zap.Error(err))
			return os.NewSyscallError("epoll_wait", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.efd {
				l.drainWakeup()
				continue
			}
			l.dispatch(fd, events[i].Events)
		}

		if l.tick != nil {
			l.tick()
		}
	}
	log.Logger.Debug("event loop stopped")
	return nil
}

// dispatch calls read, write then error handlers. Each handler is looked up again
// under the lock, so an event unregistered by an earlier handler is skipped.
func (l *EventLoop) dispatch(fd int, revents uint32) {
	l.mu.Lock()
	ev := l.events[fd]
	l.mu.Unlock()
	if ev == nil {
		return
	}

	failed := revents&errorEvents != 0

	if revents&readEvents != 0 {
		l.call(ev, Readable)
	}
	if revents&writeEvents != 0 {
		l.call(ev, Writable)
	}
	if failed {
		if l.subscribed(ev, Errored) {
			l.call(ev, Errored)
			return
		}
		// no error handler: let a read or write surface the failure
		if revents&readEvents == 0 && l.subscribed(ev, Readable) {
			l.call(ev, Readable)
		} else if revents&writeEvents == 0 && l.subscribed(ev, Writable) {
			l.call(ev, Writable)
		}
	}
}

func (l *EventLoop) subscribed(ev *Event, i Interest) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ev.registered && l.events[ev.fd] == ev && ev.interest&i != 0 && ev.handler(i) != nil
}

func (l *EventLoop) call(ev *Event, i Interest) {
	if !l.subscribed(ev, i) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error("event handler panic", zap.Int("fd", ev.fd), zap.Any("panic", r))
		}
	}()
	ev.handler(i).HandleEvent(ev.fd)
}

// Stop asks Run to return. It takes effect at the next poll boundary; the
// eventfd write makes that boundary arrive immediately.
func (l *EventLoop) Stop() {
	if l.stopped.Swap(true) || l.closed.Load() {
		return
	}
	var one uint64 = 1
	if _, err := unix.Write(l.efd, (*(*[8]byte)(unsafe.Pointer(&one)))[:]); err != nil {
		log.Logger.Warn("failed to wake event loop", zap.Error(err))
	}
}

func (l *EventLoop) drainWakeup() {
	var buf uint64
	_, err := unix.Read(l.efd, (*(*[8]byte)(unsafe.Pointer(&buf)))[:])
	if err != nil && err != unix.EAGAIN {
		log.Logger.Warn("failed to read from event fd", zap.Error(err))
	}
}

// Close releases the epoll and event fds. Call it after Run has returned.
// Registered events are forgotten, their fds belong to their owners.
func (l *EventLoop) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.stopped.Store(true)

	l.mu.Lock()
	for fd, ev := range l.events {
		ev.registered = false
		delete(l.events, fd)
	}
	l.count = 0
	l.mu.Unlock()

	return multierr.Combine(
		os.NewSyscallError("close", unix.Close(l.efd)),
		os.NewSyscallError("close", unix.Close(l.epfd)),
	)
}
