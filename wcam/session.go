package wcam

import (
	"encoding/binary"
	"github.com/fzft/go-wcam/proto"
)

// Sender is the part of a connection a session writes its responses to.
type Sender interface {
	Send(buf []byte) error
}

// Session is the protocol state of one connection. Requests are reassembled in
// acc; small responses are encoded into rsp, bulk ones into bulk. Neither buffer is
// reused before the previous response has been written, since the connection does
// not read while sending.
type Session struct {
	out Sender
	acc proto.Accumulator
	rsp [proto.MaxFrameSize]byte

	// grown on demand, bounded by video.MaxTransferSize plus the response header
	bulk []byte
	// index of the last frame handed out by VidReqFrame
	lastFrame uint64

	req proto.Frame
	err error
}

func newSession(out Sender) *Session {
	return &Session{out: out}
}

// Request is the frame being dispatched. Its data aliases the receive buffer.
func (s *Session) Request() proto.Frame {
	return s.req
}

// Reply encodes f and sends it. It does nothing unless the request is an SREQ.
func (s *Session) Reply(f proto.Frame) {
	if s.req.Type != proto.TypeSREQ {
		return
	}
	n, err := f.Encode(s.rsp[:])
	if err != nil {
		s.fail(err)
		return
	}
	s.fail(s.out.Send(s.rsp[:n]))
}

// ReplyBulk sends a response whose single u32 size payload is followed by body.
// fill appends the body to the buffer it is given.
func (s *Session) ReplyBulk(id byte, fill func(dst []byte) []byte) {
	if s.req.Type != proto.TypeSREQ {
		return
	}
	hdr := proto.HeaderSize + proto.SizePrefix
	buf := append(s.bulk[:0], proto.SizePrefix, proto.Cmd0(proto.TypeSRSP, s.req.Subsystem), id, 0, 0, 0, 0)
	buf = fill(buf)
	binary.LittleEndian.PutUint32(buf[proto.PosData:], uint32(len(buf)-hdr))
	s.bulk = buf
	s.fail(s.out.Send(buf))
}

// fail keeps the first send error; it ends the connection once dispatch returns.
func (s *Session) fail(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

func (s *Session) takeErr() error {
	err := s.err
	s.err = nil
	return err
}
