package linenoise

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/peterh/liner"
	"io"
	"os"
	"strings"
)

// ErrAborted is returned by Prompt on Ctrl-C.
var ErrAborted = liner.ErrPromptAborted

type LineNoise struct {
	*liner.State
	out io.Writer
}

// New takes over the terminal until Close is called.
func New(completions []string) *LineNoise {
	ln := &LineNoise{State: liner.NewLiner(), out: os.Stdout}
	ln.SetCtrlCAborts(true)
	if len(completions) > 0 {
		ln.SetCompleter(func(line string) []string {
			var out []string
			for _, c := range completions {
				if strings.HasPrefix(c, strings.ToLower(line)) {
					out = append(out, c)
				}
			}
			return out
		})
	}
	return ln
}

func (ln *LineNoise) HistoryLoad(filepath string) error {
	content, err := os.ReadFile(filepath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = ln.ReadHistory(bytes.NewReader(content))
	return err
}

func (ln *LineNoise) HistorySave(filepath string) error {
	var buf bytes.Buffer
	_, err := ln.WriteHistory(&buf)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, buf.Bytes(), 0644)
}

func (ln *LineNoise) ClearScreen() error {
	_, err := fmt.Fprint(ln.out, "\x1b[H\x1b[2J")
	return err
}
