// Package proc runs the external programs nbhugo drives: the trust command,
// hugo, jupyter and git.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned when a command line has no program.
var ErrEmptyCommand = errors.New("proc: empty command")

// Runner runs a command to completion and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir string, argv ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes argv in dir. A non-zero exit is reported as an error carrying
// the command line and its trimmed output.
func (ExecRunner) Run(ctx context.Context, dir string, argv ...string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), &CommandError{Argv: argv, Output: strings.TrimSpace(out.String()), Err: err}
	}
	return out.Bytes(), nil
}

// CommandError describes a failed external command.
type CommandError struct {
	Argv   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

var _ Runner = ExecRunner{}
