package reactor

import "errors"

// Interest is the set of readiness conditions an Event subscribes to.
type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
	Errored
)

var (
	ErrCapacity = errors.New("reactor: event capacity exceeded")
	ErrFdInUse  = errors.New("reactor: fd registered by another event")
	ErrRunning  = errors.New("reactor: loop already running")
	ErrClosed   = errors.New("reactor: loop closed")
)

// Handler is invoked on the loop goroutine. It must not block.
type Handler interface {
	HandleEvent(fd int)
}

type HandlerFunc func(fd int)

func (f HandlerFunc) HandleEvent(fd int) {
	f(fd)
}

// Event binds an fd to up to three handlers. It is owned by whoever created it
// and must be unregistered before its fd is closed.
type Event struct {
	fd         int
	interest   Interest
	registered bool

	rd Handler
	wr Handler
	er Handler
}

func NewEvent(fd int) *Event {
	return &Event{fd: fd}
}

func (e *Event) OnRead(h Handler) *Event {
	e.rd = h
	e.interest |= Readable
	return e
}

func (e *Event) OnWrite(h Handler) *Event {
	e.wr = h
	e.interest |= Writable
	return e
}

func (e *Event) OnError(h Handler) *Event {
	e.er = h
	e.interest |= Errored
	return e
}

func (e *Event) Fd() int {
	return e.fd
}

func (e *Event) Interest() Interest {
	return e.interest
}

func (e *Event) handler(i Interest) Handler {
	switch i {
	case Readable:
		return e.rd
	case Writable:
		return e.wr
	case Errored:
		return e.er
	}
	return nil
}
