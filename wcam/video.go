package wcam

import (
	"encoding/binary"
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/proto"
	"github.com/fzft/go-wcam/video"
	"go.uber.org/zap"
)

// Camera is what the video subsystem serves requests from. *video.Video implements it.
type Camera interface {
	Controls() []video.Control
	Control(id uint32) (int32, error)
	SetControl(id uint32, value int32) error
	ResetControls() error
	FrameSize() video.Size
	TransferFormat() video.Format
	AppendLatest(since uint64, dst []byte) ([]byte, uint64)
}

// VideoHandler serves the video subsystem. Integers on the wire are little endian.
type VideoHandler struct {
	cam Camera
}

func NewVideoHandler(cam Camera) *VideoHandler {
	return &VideoHandler{cam: cam}
}

func (h *VideoHandler) Handle(s *Session, req proto.Frame) proto.Status {
	switch req.ID {
	case proto.VidGetUCtls:
		return h.getControls(s, req)
	case proto.VidGetUCtl:
		return h.getControl(s, req)
	case proto.VidSetUCtl:
		return h.setControl(s, req)
	case proto.VidSetUCs2Def:
		return h.resetControls(s, req)
	case proto.VidGetFrmSiz:
		return h.frameSize(s, req)
	case proto.VidGetFmt:
		return h.format(s, req)
	case proto.VidReqFrame:
		return h.requestFrame(s, req)
	}
	return proto.StatusInvalidCommand
}

func reply(s *Session, req proto.Frame, data []byte) {
	s.Reply(proto.Frame{Type: proto.TypeSRSP, Subsystem: proto.SubsysVideo, ID: req.ID, Data: data})
}

func (h *VideoHandler) getControls(s *Session, req proto.Frame) proto.Status {
	controls := h.cam.Controls()
	s.ReplyBulk(req.ID, func(dst []byte) []byte {
		for _, c := range controls {
			dst = c.AppendTo(dst)
		}
		return dst
	})
	return proto.StatusSuccess
}

func (h *VideoHandler) getControl(s *Session, req proto.Frame) proto.Status {
	if len(req.Data) < 4 {
		return proto.StatusInvalidParameter
	}
	value, err := h.cam.Control(binary.LittleEndian.Uint32(req.Data))
	if err != nil {
		log.Logger.Debug("get control failed", zap.Error(err))
		return proto.StatusInvalidParameter
	}
	reply(s, req, binary.LittleEndian.AppendUint32(nil, uint32(value)))
	return proto.StatusSuccess
}

func (h *VideoHandler) setControl(s *Session, req proto.Frame) proto.Status {
	if len(req.Data) < 8 {
		return proto.StatusInvalidParameter
	}
	id := binary.LittleEndian.Uint32(req.Data)
	value := int32(binary.LittleEndian.Uint32(req.Data[4:]))
	if err := h.cam.SetControl(id, value); err != nil {
		log.Logger.Warn("set control failed", zap.Uint32("id", id), zap.Int32("value", value), zap.Error(err))
		return proto.StatusInvalidParameter
	}
	return proto.StatusSuccess
}

func (h *VideoHandler) resetControls(s *Session, req proto.Frame) proto.Status {
	if err := h.cam.ResetControls(); err != nil {
		log.Logger.Warn("reset controls failed", zap.Error(err))
		return proto.StatusInvalidParameter
	}
	return proto.StatusSuccess
}

func (h *VideoHandler) frameSize(s *Session, req proto.Frame) proto.Status {
	size := h.cam.FrameSize()
	var data [8]byte
	binary.LittleEndian.PutUint32(data[0:], size.Width)
	binary.LittleEndian.PutUint32(data[4:], size.Height)
	reply(s, req, data[:])
	return proto.StatusSuccess
}

func (h *VideoHandler) format(s *Session, req proto.Frame) proto.Status {
	reply(s, req, binary.LittleEndian.AppendUint32(nil, uint32(h.cam.TransferFormat())))
	return proto.StatusSuccess
}

// requestFrame hands out the latest frame once. A client polling faster than the
// capture rate gets a zero size until the next frame is published.
func (h *VideoHandler) requestFrame(s *Session, req proto.Frame) proto.Status {
	if req.Type != proto.TypeSREQ {
		return proto.StatusSuccess
	}
	s.ReplyBulk(req.ID, func(dst []byte) []byte {
		dst, s.lastFrame = h.cam.AppendLatest(s.lastFrame, dst)
		return dst
	})
	return proto.StatusSuccess
}
