//go:build linux
// +build linux

package client

import (
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/config"
	"github.com/fzft/go-wcam/proto"
	"github.com/fzft/go-wcam/video"
	"github.com/fzft/go-wcam/wcam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
	"time"
)

func startDevice(t *testing.T) string {
	dev, err := video.NewPatternDevice(0, 2, 30)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.SrvPort = 0
	cfg.MaxAppEvent = 16
	cfg.ThreadInPool = 2
	cfg.Version = "pattern camera"
	srv, err := wcam.New(cfg, dev)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	t.Cleanup(func() {
		srv.Shutdown()
		<-done
		srv.Close()
	})
	return fmt.Sprintf("127.0.0.1:%d", srv.Addr().(*net.TCPAddr).Port)
}

func dial(t *testing.T, addr string) *Client {
	c, err := Dial(addr, 3*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDeviceInfo(t *testing.T) {
	c := dial(t, startDevice(t))

	version, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, "pattern camera", version)

	size, err := c.FrameSize()
	require.NoError(t, err)
	assert.Equal(t, video.PatternSizes[2], size)

	format, err := c.Format()
	require.NoError(t, err)
	assert.Equal(t, video.FormatJPEG, format)
}

func TestControls(t *testing.T) {
	c := dial(t, startDevice(t))

	controls, err := c.Controls()
	require.NoError(t, err)
	require.NotEmpty(t, controls)
	assert.Equal(t, uint32(video.CIDBrightness), controls[0].ID)
	assert.Equal(t, "Brightness", controls[0].Name)

	v, err := c.Control(video.CIDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(128), v)

	require.NoError(t, c.SetControl(video.CIDBrightness, 200))
	v, err = c.Control(video.CIDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(200), v)

	// out of range is dropped by the device
	require.NoError(t, c.SetControl(video.CIDBrightness, 1000))
	v, err = c.Control(video.CIDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(200), v)

	require.NoError(t, c.ResetControls())
	v, err = c.Control(video.CIDBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(128), v)

	_, err = c.Control(0xdead)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, proto.StatusInvalidParameter, se.Status)
	assert.Equal(t, proto.VidGetUCtl, se.Cmd1)
}

func TestRequestFrame(t *testing.T) {
	c := dial(t, startDevice(t))

	var frame []byte
	require.Eventually(t, func() bool {
		var err error
		frame, err = c.RequestFrame(frame[:0])
		return err == nil && len(frame) > 0
	}, 5*time.Second, 20*time.Millisecond)

	_, size, err := video.JPEGCodec{}.DecodeJPEG(nil, frame)
	require.NoError(t, err)
	assert.Equal(t, video.PatternSizes[2], size)
}

func TestStatusError(t *testing.T) {
	c := dial(t, startDevice(t))

	_, err := c.Do(2, 0x07, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, proto.StatusInvalidSubsystem, se.Status)
	assert.Equal(t, byte(0x22), se.Cmd0)
	assert.Contains(t, se.Error(), "invalid_subsystem")

	// the connection survives protocol errors
	_, err = c.Version()
	assert.NoError(t, err)
}

// cannedPeer answers the first request it reads with reply.
func cannedPeer(t *testing.T, reply []byte) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req := make([]byte, proto.MaxFrameSize)
		if _, err := conn.Read(req); err != nil {
			return
		}
		conn.Write(reply)
		// hold the connection open until the client is done
		conn.Read(req)
	}()
	return ln.Addr().String()
}

func TestMalformedResponses(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{"oversized length", []byte{0xfe, 0x63, 0x10}},
		{"asynchronous response", []byte{0, 0x41, 0x00}},
		{"other command", []byte{0, 0x63, 0x11}},
		{"short error frame", []byte{1, 0x60, 0x10, 0x04}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, cannedPeer(t, tt.reply))
			_, err := c.Do(proto.SubsysVideo, proto.VidGetFrmSiz, nil)
			assert.ErrorIs(t, err, ErrUnexpectedResponse)
		})
	}
}

func TestRequestTooLong(t *testing.T) {
	c := dial(t, startDevice(t))
	_, err := c.Do(proto.SubsysSys, proto.SysVersion, make([]byte, proto.MaxData+1))
	assert.ErrorIs(t, err, proto.ErrDataTooLong)

	// the connection is still usable
	version, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, "pattern camera", version)
}
