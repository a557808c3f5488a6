package notebook

import (
	"context"
	"fmt"

	"github.com/starford/nbhugo/internal/proc"
)

// Trustor re-marks a notebook as trusted after nbhugo has rewritten it.
type Trustor interface {
	Trust(ctx context.Context, absPath string) error
}

// CommandTrustor runs an external command with the notebook path appended,
// `jupyter trust` by default.
type CommandTrustor struct {
	Command []string
	Runner  proc.Runner
}

// NewCommandTrustor returns a trustor running command through r.
func NewCommandTrustor(command []string, r proc.Runner) *CommandTrustor {
	if len(command) == 0 {
		command = []string{"jupyter", "trust"}
	}
	if r == nil {
		r = proc.ExecRunner{}
	}
	return &CommandTrustor{Command: command, Runner: r}
}

func (t *CommandTrustor) Trust(ctx context.Context, absPath string) error {
	argv := append(append([]string{}, t.Command...), absPath)
	if _, err := t.Runner.Run(ctx, "", argv...); err != nil {
		return fmt.Errorf("notebook: trust: %w", err)
	}
	return nil
}

// NopTrustor skips trust marking.
type NopTrustor struct{}

func (NopTrustor) Trust(context.Context, string) error { return nil }
