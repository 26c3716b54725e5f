package cmd

import (
	"fmt"
	"github.com/fzft/go-wcam/video"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
)

// cliCommand is one entry of the command table. arity is the exact number of
// arguments, or -(n+1) for at least n.
type cliCommand struct {
	name      string
	params    string
	summary   string
	arity     int
	needsConn bool
	proc      func(cli *Cli, args []string) error
}

var commandTable = []*cliCommand{
	{name: "version", summary: "Show the device firmware version", arity: 0, needsConn: true, proc: versionCommand},
	{name: "size", summary: "Show the capture frame size", arity: 0, needsConn: true, proc: sizeCommand},
	{name: "format", summary: "Show the transfer format", arity: 0, needsConn: true, proc: formatCommand},
	{name: "controls", summary: "List the camera controls", arity: 0, needsConn: true, proc: controlsCommand},
	{name: "get", params: "<control>", summary: "Read a control by id or name", arity: 1, needsConn: true, proc: getCommand},
	{name: "set", params: "<control> <value>", summary: "Write a control by id or name", arity: 2, needsConn: true, proc: setCommand},
	{name: "reset", summary: "Restore every control to its default", arity: 0, needsConn: true, proc: resetCommand},
	{name: "frame", params: "[file]", summary: "Fetch the latest frame, optionally saving it as JPEG", arity: -1, needsConn: true, proc: frameCommand},
	{name: "connect", params: "<host> <port>", summary: "Connect to another device", arity: 2, proc: connectCommand},
	{name: "help", params: "[command]", summary: "Show help", arity: -1},
}

func init() {
	// set here, helpCommand reads the table
	lookupCommand("help").proc = helpCommand
}

func lookupCommand(name string) *cliCommand {
	for _, cmd := range commandTable {
		if strings.EqualFold(cmd.name, name) {
			return cmd
		}
	}
	return nil
}

func commandNames() []string {
	names := []string{"clear", "exit", "quit"}
	for _, cmd := range commandTable {
		names = append(names, cmd.name)
	}
	sort.Strings(names)
	return names
}

func versionCommand(cli *Cli, args []string) error {
	v, err := cli.client.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, v)
	return nil
}

func sizeCommand(cli *Cli, args []string) error {
	size, err := cli.client.FrameSize()
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, size)
	return nil
}

func formatCommand(cli *Cli, args []string) error {
	f, err := cli.client.Format()
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, f)
	return nil
}

func controlsCommand(cli *Cli, args []string) error {
	controls, err := cli.client.Controls()
	if err != nil {
		return err
	}
	for _, c := range controls {
		fmt.Fprintf(cli.out, "0x%08x %-32s %-8s value=%d default=%d range=[%d,%d]\n",
			c.ID, c.Name, c.Type, c.Value, c.Default, c.Min, c.Max)
	}
	return nil
}

// resolveControl accepts a numeric id (decimal or 0x hex) or a control name.
func resolveControl(cli *Cli, s string) (uint32, error) {
	if id, err := strconv.ParseUint(s, 0, 32); err == nil {
		return uint32(id), nil
	}
	controls, err := cli.client.Controls()
	if err != nil {
		return 0, err
	}
	for _, c := range controls {
		if strings.EqualFold(strings.ReplaceAll(c.Name, " ", "_"), s) || strings.EqualFold(c.Name, s) {
			return c.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: no control named '%s'", ErrUsage, s)
}

func getCommand(cli *Cli, args []string) error {
	id, err := resolveControl(cli, args[0])
	if err != nil {
		return err
	}
	v, err := cli.client.Control(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, v)
	return nil
}

func setCommand(cli *Cli, args []string) error {
	id, err := resolveControl(cli, args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: bad value '%s'", ErrUsage, args[1])
	}
	if err := cli.client.SetControl(id, int32(v)); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "OK")
	return nil
}

func resetCommand(cli *Cli, args []string) error {
	if err := cli.client.ResetControls(); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "OK")
	return nil
}

func frameCommand(cli *Cli, args []string) error {
	var err error
	cli.frame, err = cli.client.RequestFrame(cli.frame[:0])
	if err != nil {
		return err
	}
	if len(cli.frame) == 0 {
		fmt.Fprintln(cli.out, "(no new frame)")
		return nil
	}
	if len(args) > 0 {
		if err := os.WriteFile(args[0], cli.frame, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%d bytes written to %s\n", len(cli.frame), args[0])
		return nil
	}
	_, size, err := video.JPEGCodec{}.DecodeJPEG(nil, cli.frame)
	if err != nil {
		fmt.Fprintf(cli.out, "%d bytes (undecodable: %s)\n", len(cli.frame), err)
		return nil
	}
	fmt.Fprintf(cli.out, "%d bytes, %s\n", len(cli.frame), size)
	return nil
}

func connectCommand(cli *Cli, args []string) error {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: invalid port number", ErrUsage)
	}
	cli.config.Addr = net.JoinHostPort(args[0], strconv.Itoa(port))
	return cli.connect(true)
}

func helpCommand(cli *Cli, args []string) error {
	for _, cmd := range commandTable {
		if len(args) > 0 && !strings.EqualFold(args[0], cmd.name) {
			continue
		}
		fmt.Fprintf(cli.out, "  %-28s %s\n", strings.TrimSpace(cmd.name+" "+cmd.params), cmd.summary)
	}
	return nil
}
