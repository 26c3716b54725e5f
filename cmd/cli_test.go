//go:build linux
// +build linux

package cmd

import (
	"bytes"
	"fmt"
	"github.com/fzft/go-wcam/config"
	"github.com/fzft/go-wcam/video"
	"github.com/fzft/go-wcam/wcam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"os"
	"path/filepath"
	"strings"
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

func newTestCli(t *testing.T) (*Cli, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cli := NewCli(&CliConfig{Addr: startDevice(t), Timeout: 3 * time.Second}, out)
	t.Cleanup(cli.disconnect)
	return cli, out
}

func exec(t *testing.T, cli *Cli, out *bytes.Buffer, line string) string {
	out.Reset()
	require.NoError(t, cli.Exec(strings.Fields(line)))
	return strings.TrimSpace(out.String())
}

func TestInfoCommands(t *testing.T) {
	cli, out := newTestCli(t)

	assert.Equal(t, config.DefaultVersion, exec(t, cli, out, "version"))
	assert.Equal(t, "160x120", exec(t, cli, out, "SIZE"))
	assert.Equal(t, "JPEG", exec(t, cli, out, "format"))

	controls := exec(t, cli, out, "controls")
	assert.Contains(t, controls, "0x00980900 Brightness")
	assert.Contains(t, controls, "boolean")
}

func TestControlCommands(t *testing.T) {
	cli, out := newTestCli(t)

	assert.Equal(t, "128", exec(t, cli, out, "get brightness"))
	assert.Equal(t, "OK", exec(t, cli, out, "set Brightness 200"))
	assert.Equal(t, "200", exec(t, cli, out, "get 0x00980900"))
	assert.Equal(t, "OK", exec(t, cli, out, "reset"))
	assert.Equal(t, "1", exec(t, cli, out, "get White_Balance_Temperature,_Auto"))
}

func TestFrameCommand(t *testing.T) {
	cli, out := newTestCli(t)
	path := filepath.Join(t.TempDir(), "frame.jpg")

	require.Eventually(t, func() bool {
		out.Reset()
		err := cli.Exec([]string{"frame", path})
		return err == nil && strings.Contains(out.String(), "written to "+path)
	}, 5*time.Second, 20*time.Millisecond)

	jpg, err := os.ReadFile(path)
	require.NoError(t, err)
	_, size, err := video.JPEGCodec{}.DecodeJPEG(nil, jpg)
	require.NoError(t, err)
	assert.Equal(t, video.PatternSizes[2], size)
}

func TestUsageErrors(t *testing.T) {
	cli, out := newTestCli(t)

	assert.ErrorIs(t, cli.Exec([]string{"nosuch"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec([]string{"get"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec([]string{"set", "brightness", "high"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec([]string{"get", "nosuch"}), ErrUsage)
	assert.ErrorIs(t, cli.Exec([]string{"connect", "localhost", "port"}), ErrUsage)

	help := exec(t, cli, out, "help")
	for _, cmd := range commandTable {
		assert.Contains(t, help, cmd.name)
	}
	frame := exec(t, cli, out, "help frame")
	assert.True(t, strings.HasPrefix(frame, "frame [file] "))
	assert.True(t, strings.HasSuffix(frame, "optionally saving it as JPEG"))
	assert.NotContains(t, frame, "version")
}

func TestConnectionDroppedOnNetworkError(t *testing.T) {
	cli := NewCli(&CliConfig{Addr: "127.0.0.1:1", Timeout: time.Second}, &bytes.Buffer{})
	assert.Error(t, cli.Exec([]string{"version"}))
	assert.Nil(t, cli.client)
	assert.Equal(t, "not connected> ", cli.prompt())
}

func TestDotfilePath(t *testing.T) {
	t.Setenv(CliHisFileEnv, "/dev/null")
	assert.Equal(t, "", getDotfilePath(CliHisFileEnv, CliHisFileDefault))

	t.Setenv(CliHisFileEnv, "")
	t.Setenv("HOME", "/home/cam")
	assert.Equal(t, "/home/cam/.wcamctl_history", getDotfilePath(CliHisFileEnv, CliHisFileDefault))
}
