package main

import (
	"errors"
	"flag"
	"fmt"
	"github.com/fzft/go-wcam/cmd"
	"os"
)

func main() {
	var config cmd.CliConfig
	flag.StringVar(&config.Addr, "addr", cmd.DefaultAddr, "device address host:port")
	flag.DurationVar(&config.Timeout, "timeout", cmd.DefaultTimeout, "connect and request timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: wcamctl [OPTIONS] [command [arg ...]]\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nWithout a command an interactive prompt is started. Commands:\n")
		cmd.NewCli(&config, flag.CommandLine.Output()).Exec([]string{"help"})
	}
	flag.Parse()

	cli := cmd.NewCli(&config, os.Stdout)
	if err := cli.Run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "wcamctl: %s\n", err)
		if errors.Is(err, cmd.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
