package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/starford/nbhugo/internal/logfields"
)

// Process is a long-lived child such as `hugo server` or `jupyter notebook`.
type Process struct {
	Name   string
	Argv   []string
	Dir    string
	Logger *slog.Logger
	// GracePeriod is how long the child gets to exit after an interrupt
	// before it is killed. Zero means five seconds.
	GracePeriod time.Duration
}

// Run starts the process and blocks until it exits or ctx is cancelled. On
// cancellation the child receives an interrupt, then a kill after the grace
// period, and Run returns nil. An exit on its own is an error, so callers
// running several processes under one errgroup shut the others down.
func (p *Process) Run(ctx context.Context) error {
	if len(p.Argv) == 0 || p.Argv[0] == "" {
		return ErrEmptyCommand
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := p.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	cmd.Dir = p.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("proc: start %s: %w", p.Name, err)
	}
	logger.Info("process started", logfields.Process(p.Name), slog.Int("pid", cmd.Process.Pid))

	err := cmd.Wait()
	if ctx.Err() != nil {
		logger.Info("process stopped", logfields.Process(p.Name))
		return nil
	}
	if err == nil {
		err = errors.New("exited")
	}
	return fmt.Errorf("proc: %s: %w", p.Name, err)
}
