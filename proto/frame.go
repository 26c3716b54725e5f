package proto

import (
	"errors"
	"fmt"
)

// Frame layout, every field a single byte:
//
//	[0] length  payload size, 0..MaxData
//	[1] cmd0    type<<5 | subsystem
//	[2] cmd1    command id
//	[3..]       payload
const (
	HeaderSize   = 3
	MaxData      = 250
	MaxFrameSize = HeaderSize + MaxData

	PosLen  = 0
	PosCmd0 = 1
	PosCmd1 = 2
	PosData = 3

	typeShift  = 5
	subsysMask = 0x1f
)

type Type uint8

const (
	TypeSREQ Type = 1
	TypeAREQ Type = 2
	TypeSRSP Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeSREQ:
		return "SREQ"
	case TypeAREQ:
		return "AREQ"
	case TypeSRSP:
		return "SRSP"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

type Subsystem uint8

const (
	SubsysError Subsystem = 0
	SubsysSys   Subsystem = 1
	SubsysVideo Subsystem = 3
	SubsysMax   Subsystem = 4
)

func (s Subsystem) String() string {
	switch s {
	case SubsysError:
		return "error"
	case SubsysSys:
		return "sys"
	case SubsysVideo:
		return "video"
	}
	return fmt.Sprintf("subsys(%d)", uint8(s))
}

type Status uint8

const (
	StatusSuccess Status = iota
	StatusInvalidSubsystem
	StatusInvalidCommand
	StatusInvalidParameter
	StatusInvalidLength
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidSubsystem:
		return "invalid_subsystem"
	case StatusInvalidCommand:
		return "invalid_command"
	case StatusInvalidParameter:
		return "invalid_parameter"
	case StatusInvalidLength:
		return "invalid_length"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

var (
	ErrShortFrame  = errors.New("proto: short frame")
	ErrDataTooLong = errors.New("proto: payload exceeds 250 bytes")
	ErrShortBuffer = errors.New("proto: buffer too small")
)

func Cmd0(t Type, s Subsystem) byte {
	return byte(t)<<typeShift | byte(s)&subsysMask
}

func SplitCmd0(b byte) (Type, Subsystem) {
	return Type(b >> typeShift), Subsystem(b & subsysMask)
}

type Frame struct {
	Type      Type
	Subsystem Subsystem
	ID        byte
	Data      []byte
}

func (f Frame) Cmd0() byte {
	return Cmd0(f.Type, f.Subsystem)
}

// Size is the encoded length.
func (f Frame) Size() int {
	return HeaderSize + len(f.Data)
}

// Encode writes f into dst and returns the number of bytes written.
func (f Frame) Encode(dst []byte) (int, error) {
	if len(f.Data) > MaxData {
		return 0, ErrDataTooLong
	}
	if len(dst) < f.Size() {
		return 0, ErrShortBuffer
	}
	dst[PosLen] = byte(len(f.Data))
	dst[PosCmd0] = f.Cmd0()
	dst[PosCmd1] = f.ID
	return HeaderSize + copy(dst[PosData:], f.Data), nil
}

func (f Frame) AppendTo(dst []byte) ([]byte, error) {
	if len(f.Data) > MaxData {
		return dst, ErrDataTooLong
	}
	dst = append(dst, byte(len(f.Data)), f.Cmd0(), f.ID)
	return append(dst, f.Data...), nil
}

func (f Frame) String() string {
	return fmt.Sprintf("%s/%s/0x%02x len=%d", f.Type, f.Subsystem, f.ID, len(f.Data))
}

// Decode parses one frame from the front of b. Data aliases b.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, ErrShortFrame
	}
	n := int(b[PosLen])
	if n > MaxData {
		return Frame{}, ErrDataTooLong
	}
	if len(b) < HeaderSize+n {
		return Frame{}, ErrShortFrame
	}
	t, s := SplitCmd0(b[PosCmd0])
	return Frame{Type: t, Subsystem: s, ID: b[PosCmd1], Data: b[PosData : PosData+n]}, nil
}

// ErrorFrame is the reply to a failed SREQ: [3][SRSP|error][cmd1][status cmd0 cmd1].
func ErrorFrame(status Status, cmd0, cmd1 byte) Frame {
	return Frame{
		Type:      TypeSRSP,
		Subsystem: SubsysError,
		ID:        cmd1,
		Data:      []byte{byte(status), cmd0, cmd1},
	}
}
