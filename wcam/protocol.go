package wcam

import (
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/metrics"
	"github.com/fzft/go-wcam/proto"
	"go.uber.org/zap"
)

// Handler serves the requests of one subsystem. It may reply through the session
// itself; a non success status on an SREQ is answered with an error frame.
type Handler interface {
	Handle(s *Session, req proto.Frame) proto.Status
}

type HandlerFunc func(s *Session, req proto.Frame) proto.Status

func (f HandlerFunc) Handle(s *Session, req proto.Frame) proto.Status {
	return f(s, req)
}

// Protocol dispatches reassembled frames to the subsystem handlers.
type Protocol struct {
	handlers [proto.SubsysMax]Handler
	metrics  *metrics.Metrics
}

func NewProtocol(m *metrics.Metrics) *Protocol {
	return &Protocol{metrics: m}
}

// Handle installs h for subsystem sub, replacing any previous handler.
func (p *Protocol) Handle(sub proto.Subsystem, h Handler) {
	if sub >= proto.SubsysMax {
		panic("wcam: subsystem out of range: " + sub.String())
	}
	p.handlers[sub] = h
}

// dispatch serves the complete frame held by the session's accumulator and resets it.
func (p *Protocol) dispatch(s *Session) error {
	defer s.acc.Reset()

	cmd0, cmd1 := s.acc.Cmd0(), s.acc.Cmd1()
	typ, sub := proto.SplitCmd0(cmd0)
	s.req = proto.Frame{Type: typ, Subsystem: sub, ID: cmd1}

	var status proto.Status
	switch {
	case s.acc.Len() > proto.MaxData:
		status = proto.StatusInvalidLength
	case sub >= proto.SubsysMax || p.handlers[sub] == nil:
		status = proto.StatusInvalidSubsystem
	default:
		s.req.Data = s.acc.Payload()
		status = p.handlers[sub].Handle(s, s.req)
	}

	p.metrics.Frame(sub.String(), status.String())
	if status != proto.StatusSuccess {
		log.Logger.Debug("request failed", zap.Stringer("req", s.req), zap.Stringer("status", status))
		s.Reply(proto.ErrorFrame(status, cmd0, cmd1))
	}
	s.req = proto.Frame{}
	return s.takeErr()
}
