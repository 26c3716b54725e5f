package video

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("video: unsupported capture format")
	ErrUnknownControl    = errors.New("video: unknown control")
	ErrControlRange      = errors.New("video: control value out of range")
	ErrNotStarted        = errors.New("video: capture not started")
)

// Format is a V4L2 style fourcc.
type Format uint32

func FourCC(a, b, c, d byte) Format {
	return Format(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	FormatYUYV  = FourCC('Y', 'U', 'Y', 'V')
	FormatJPEG  = FourCC('J', 'P', 'E', 'G')
	FormatMJPEG = FourCC('M', 'J', 'P', 'G')
)

func (f Format) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// Compressed reports whether frames of this format are already JPEG.
func (f Format) Compressed() bool {
	return f == FormatJPEG || f == FormatMJPEG
}

type Size struct {
	Width  uint32
	Height uint32
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// YUYVLen is the byte length of a packed 4:2:2 frame of this size.
func (s Size) YUYVLen() int {
	return int(s.Width) * int(s.Height) * 2
}

// ControlType mirrors enum v4l2_ctrl_type.
type ControlType uint32

const (
	ControlInteger ControlType = 1
	ControlBoolean ControlType = 2
	ControlMenu    ControlType = 3
	ControlButton  ControlType = 4
)

func (t ControlType) String() string {
	switch t {
	case ControlInteger:
		return "integer"
	case ControlBoolean:
		return "boolean"
	case ControlMenu:
		return "menu"
	case ControlButton:
		return "button"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

const (
	ControlSize    = 56
	controlNameLen = 32
)

// Control is one user control of the capture device.
type Control struct {
	ID      uint32
	Type    ControlType
	Value   int32
	Default int32
	Min     int32
	Max     int32
	Name    string
}

// AppendTo encodes c in its 56 byte wire layout, little endian, name NUL padded.
func (c Control) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, c.ID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.Type))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.Value))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.Default))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.Min))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.Max))

	var name [controlNameLen]byte
	copy(name[:controlNameLen-1], c.Name)
	return append(dst, name[:]...)
}

// DecodeControl is the inverse of AppendTo.
func DecodeControl(b []byte) (Control, error) {
	if len(b) < ControlSize {
		return Control{}, fmt.Errorf("video: control record needs %d bytes, got %d", ControlSize, len(b))
	}
	name := b[24:ControlSize]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	return Control{
		ID:      binary.LittleEndian.Uint32(b[0:]),
		Type:    ControlType(binary.LittleEndian.Uint32(b[4:])),
		Value:   int32(binary.LittleEndian.Uint32(b[8:])),
		Default: int32(binary.LittleEndian.Uint32(b[12:])),
		Min:     int32(binary.LittleEndian.Uint32(b[16:])),
		Max:     int32(binary.LittleEndian.Uint32(b[20:])),
		Name:    string(name[:end]),
	}, nil
}

// Device is a capture source. Start delivers frames from the device's own goroutine;
// a frame is only valid for the duration of the callback.
type Device interface {
	Format() Format
	FrameSize() Size
	Controls() []Control
	Control(id uint32) (int32, error)
	SetControl(id uint32, value int32) error
	ResetControls() error
	Start(fn func(frame []byte)) error
	Stop() error
}

// Encoder compresses a packed YUYV frame into JPEG, appending to dst.
type Encoder interface {
	EncodeYUYV(dst, yuyv []byte, size Size) ([]byte, error)
}

// Decoder expands a JPEG frame into packed YUYV, appending to dst.
type Decoder interface {
	DecodeJPEG(dst, jpeg []byte) ([]byte, Size, error)
}

// Display shows a packed YUYV frame.
type Display interface {
	ShowYUYV(yuyv []byte, size Size) error
	Close() error
}

type NopDisplay struct{}

func (NopDisplay) ShowYUYV([]byte, Size) error { return nil }

func (NopDisplay) Close() error { return nil }
