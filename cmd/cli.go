package cmd

import (
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/client"
	"github.com/fzft/go-wcam/deps/linenoise"
	"github.com/mattn/go-isatty"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

const (
	DefaultAddr    = "127.0.0.1:19868"
	DefaultTimeout = 5 * time.Second

	CliHisFileEnv     = "WCAMCTL_HISTFILE"
	CliHisFileDefault = ".wcamctl_history"
)

var ErrUsage = errors.New("usage error")

type CliConfig struct {
	Addr    string
	Timeout time.Duration
}

type Cli struct {
	config *CliConfig
	out    io.Writer

	client *client.Client
	line   *linenoise.LineNoise
	frame  []byte
}

func NewCli(config *CliConfig, out io.Writer) *Cli {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Cli{config: config, out: out}
}

// Run executes argv once, or starts the interactive prompt when argv is empty
// and stdin is a terminal.
func (cli *Cli) Run(argv []string) error {
	defer cli.disconnect()

	if len(argv) == 0 {
		if !isTerminal(os.Stdin) {
			return fmt.Errorf("%w: no command given and stdin is not a terminal", ErrUsage)
		}
		return cli.repl()
	}
	return cli.Exec(argv)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// connect dials the configured device. With force an existing connection is replaced.
func (cli *Cli) connect(force bool) error {
	if cli.client != nil && !force {
		return nil
	}
	cli.disconnect()

	c, err := client.Dial(cli.config.Addr, cli.config.Timeout)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", cli.config.Addr, err)
	}
	cli.client = c
	return nil
}

func (cli *Cli) disconnect() {
	if cli.client != nil {
		cli.client.Close()
		cli.client = nil
	}
}

// Exec runs one command. A network failure drops the connection so the
// prompt can reconnect on the next command.
func (cli *Cli) Exec(argv []string) error {
	cmd := lookupCommand(argv[0])
	if cmd == nil {
		return fmt.Errorf("%w: unknown command '%s', try 'help'", ErrUsage, argv[0])
	}
	args := argv[1:]
	if (cmd.arity >= 0 && len(args) != cmd.arity) || (cmd.arity < 0 && len(args) < -cmd.arity-1) {
		return fmt.Errorf("%w: %s %s", ErrUsage, cmd.name, cmd.params)
	}
	if cmd.needsConn {
		if err := cli.connect(false); err != nil {
			return err
		}
	}

	err := cmd.proc(cli, args)
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, io.EOF) {
		cli.disconnect()
	}
	return err
}

func (cli *Cli) prompt() string {
	if cli.client == nil {
		return "not connected> "
	}
	return fmt.Sprintf("wcam %s> ", cli.config.Addr)
}

func (cli *Cli) repl() error {
	cli.line = linenoise.New(commandNames())
	defer cli.line.Close()

	historyFile := getDotfilePath(CliHisFileEnv, CliHisFileDefault)
	if historyFile != "" {
		if err := cli.line.HistoryLoad(historyFile); err != nil {
			fmt.Fprintf(os.Stderr, "could not load history: %s\n", err)
		}
	}

	if err := cli.connect(false); err != nil {
		fmt.Fprintln(cli.out, err)
	}

	for {
		line, err := cli.line.Prompt(cli.prompt())
		if err != nil {
			if errors.Is(err, linenoise.ErrAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		argv := strings.Fields(line)
		if len(argv) == 0 {
			continue
		}
		cli.line.AppendHistory(line)
		if historyFile != "" {
			cli.line.HistorySave(historyFile)
		}

		switch strings.ToLower(argv[0]) {
		case "quit", "exit":
			return nil
		case "clear":
			cli.line.ClearScreen()
			continue
		}
		if err := cli.Exec(argv); err != nil {
			fmt.Fprintf(cli.out, "(error) %s\n", err)
		}
	}
}

func getDotfilePath(envOverride, dotFilename string) string {
	path := os.Getenv(envOverride)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		return path
	}
	if home := os.Getenv("HOME"); home != "" {
		return fmt.Sprintf("%s/%s", home, dotFilename)
	}
	return ""
}
