package wcam

import "github.com/fzft/go-wcam/proto"

// SysHandler answers system information requests.
type SysHandler struct {
	version []byte
}

// NewSysHandler reports version, cut to what fits in one frame.
func NewSysHandler(version string) *SysHandler {
	if len(version) > proto.MaxData {
		version = version[:proto.MaxData]
	}
	return &SysHandler{version: []byte(version)}
}

func (h *SysHandler) Handle(s *Session, req proto.Frame) proto.Status {
	switch req.ID {
	case proto.SysVersion:
		s.Reply(proto.Frame{Type: proto.TypeSRSP, Subsystem: proto.SubsysSys, ID: req.ID, Data: h.version})
		return proto.StatusSuccess
	}
	return proto.StatusInvalidCommand
}
