// Package client talks the wcam frame protocol to a device.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/proto"
	"github.com/fzft/go-wcam/video"
	"io"
	"net"
	"time"
)

var ErrUnexpectedResponse = errors.New("client: unexpected response")

// StatusError is a request the device refused with an error frame.
type StatusError struct {
	Status proto.Status
	Cmd0   byte
	Cmd1   byte
}

func (e *StatusError) Error() string {
	t, s := proto.SplitCmd0(e.Cmd0)
	return fmt.Sprintf("client: %s %s/0x%02x failed: %s", t, s, e.Cmd1, e.Status)
}

// Client is one connection to a device. It is not safe for concurrent use.
type Client struct {
	conn    net.Conn
	timeout time.Duration
	req     []byte
	rsp     [proto.MaxFrameSize]byte
}

// Dial connects to addr. timeout bounds the connect and every request; zero disables it.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Client) deadline() {
	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

func (c *Client) write(req proto.Frame) error {
	buf, err := req.AppendTo(c.req[:0])
	if err != nil {
		return err
	}
	c.req = buf
	c.deadline()
	_, err = c.conn.Write(buf)
	return err
}

// Send writes an asynchronous request. The device does not answer it.
func (c *Client) Send(subsys proto.Subsystem, id byte, data []byte) error {
	return c.write(proto.Frame{Type: proto.TypeAREQ, Subsystem: subsys, ID: id, Data: data})
}

// Do sends a synchronous request and reads its response frame. Response data is
// only valid until the next call. An error frame is returned as a *StatusError.
func (c *Client) Do(subsys proto.Subsystem, id byte, data []byte) (proto.Frame, error) {
	req := proto.Frame{Type: proto.TypeSREQ, Subsystem: subsys, ID: id, Data: data}
	if err := c.write(req); err != nil {
		return proto.Frame{}, err
	}
	if _, err := io.ReadFull(c.conn, c.rsp[:proto.HeaderSize]); err != nil {
		return proto.Frame{}, err
	}
	n := proto.HeaderSize + int(c.rsp[proto.PosLen])
	if n > len(c.rsp) {
		return proto.Frame{}, fmt.Errorf("%w: length %d", ErrUnexpectedResponse, c.rsp[proto.PosLen])
	}
	if _, err := io.ReadFull(c.conn, c.rsp[proto.HeaderSize:n]); err != nil {
		return proto.Frame{}, err
	}

	rsp, err := proto.Decode(c.rsp[:n])
	if err != nil {
		return proto.Frame{}, fmt.Errorf("%w: %s", ErrUnexpectedResponse, err)
	}
	if rsp.Type != proto.TypeSRSP {
		return rsp, fmt.Errorf("%w: %s", ErrUnexpectedResponse, rsp)
	}
	if rsp.Subsystem == proto.SubsysError {
		if n < 3 {
			return rsp, fmt.Errorf("%w: short error frame", ErrUnexpectedResponse)
		}
		return rsp, &StatusError{Status: proto.Status(rsp.Data[0]), Cmd0: rsp.Data[1], Cmd1: rsp.Data[2]}
	}
	if rsp.Subsystem != subsys || rsp.ID != id {
		return rsp, fmt.Errorf("%w: %s for %s", ErrUnexpectedResponse, rsp, req)
	}
	return rsp, nil
}

// doBulk reads a size prefixed response and the bytes following it into dst.
func (c *Client) doBulk(subsys proto.Subsystem, id byte, dst []byte) ([]byte, error) {
	rsp, err := c.Do(subsys, id, nil)
	if err != nil {
		return dst, err
	}
	if len(rsp.Data) != proto.SizePrefix {
		return dst, fmt.Errorf("%w: bulk header of %d bytes", ErrUnexpectedResponse, len(rsp.Data))
	}
	size := binary.LittleEndian.Uint32(rsp.Data)
	if size > video.MaxTransferSize {
		return dst, fmt.Errorf("%w: bulk size %d", ErrUnexpectedResponse, size)
	}
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	if _, err := io.ReadFull(c.conn, dst[start:]); err != nil {
		return dst[:start], err
	}
	return dst, nil
}

func (c *Client) Version() (string, error) {
	rsp, err := c.Do(proto.SubsysSys, proto.SysVersion, nil)
	if err != nil {
		return "", err
	}
	return string(rsp.Data), nil
}

func (c *Client) FrameSize() (video.Size, error) {
	rsp, err := c.Do(proto.SubsysVideo, proto.VidGetFrmSiz, nil)
	if err != nil {
		return video.Size{}, err
	}
	if len(rsp.Data) < 8 {
		return video.Size{}, fmt.Errorf("%w: frame size of %d bytes", ErrUnexpectedResponse, len(rsp.Data))
	}
	return video.Size{
		Width:  binary.LittleEndian.Uint32(rsp.Data),
		Height: binary.LittleEndian.Uint32(rsp.Data[4:]),
	}, nil
}

// Format is the format of frames returned by RequestFrame.
func (c *Client) Format() (video.Format, error) {
	rsp, err := c.Do(proto.SubsysVideo, proto.VidGetFmt, nil)
	if err != nil {
		return 0, err
	}
	if len(rsp.Data) < 4 {
		return 0, fmt.Errorf("%w: format of %d bytes", ErrUnexpectedResponse, len(rsp.Data))
	}
	return video.Format(binary.LittleEndian.Uint32(rsp.Data)), nil
}

func (c *Client) Controls() ([]video.Control, error) {
	b, err := c.doBulk(proto.SubsysVideo, proto.VidGetUCtls, nil)
	if err != nil {
		return nil, err
	}
	if len(b)%video.ControlSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of controls", ErrUnexpectedResponse, len(b))
	}
	controls := make([]video.Control, 0, len(b)/video.ControlSize)
	for ; len(b) > 0; b = b[video.ControlSize:] {
		ctl, err := video.DecodeControl(b)
		if err != nil {
			return nil, err
		}
		controls = append(controls, ctl)
	}
	return controls, nil
}

func (c *Client) Control(id uint32) (int32, error) {
	rsp, err := c.Do(proto.SubsysVideo, proto.VidGetUCtl, binary.LittleEndian.AppendUint32(nil, id))
	if err != nil {
		return 0, err
	}
	if len(rsp.Data) < 4 {
		return 0, fmt.Errorf("%w: control value of %d bytes", ErrUnexpectedResponse, len(rsp.Data))
	}
	return int32(binary.LittleEndian.Uint32(rsp.Data)), nil
}

// SetControl is asynchronous; a rejected value is only logged by the device.
func (c *Client) SetControl(id uint32, value int32) error {
	var data [8]byte
	binary.LittleEndian.PutUint32(data[0:], id)
	binary.LittleEndian.PutUint32(data[4:], uint32(value))
	return c.Send(proto.SubsysVideo, proto.VidSetUCtl, data[:])
}

func (c *Client) ResetControls() error {
	return c.Send(proto.SubsysVideo, proto.VidSetUCs2Def, nil)
}

// RequestFrame appends the next unseen frame to dst. It returns dst unchanged
// when no frame was published since the previous call on this connection.
func (c *Client) RequestFrame(dst []byte) ([]byte, error) {
	return c.doBulk(proto.SubsysVideo, proto.VidReqFrame, dst)
}
