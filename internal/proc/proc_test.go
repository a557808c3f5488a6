package proc

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_Success(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out, err := ExecRunner{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("out = %q", out)
	}
}

func TestExecRunner_FailureCarriesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	_, err := ExecRunner{}.Run(context.Background(), "", "sh", "-c", "echo broken >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Output != "broken" {
		t.Errorf("output = %q", cmdErr.Output)
	}
	if !strings.Contains(err.Error(), "sh -c") {
		t.Errorf("error should name the command: %v", err)
	}
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	if _, err := (ExecRunner{}).Run(context.Background(), ""); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("err = %v", err)
	}
}

func TestProcess_StopsOnCancel(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Process{Name: "sleeper", Argv: []string{"sleep", "30"}, GracePeriod: time.Second}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not stop")
	}
}

func TestProcess_ExitIsError(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	p := &Process{Name: "quick", Argv: []string{"true"}}
	if err := p.Run(context.Background()); err == nil {
		t.Error("expected an error when the process exits on its own")
	}
}
