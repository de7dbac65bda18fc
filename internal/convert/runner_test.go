package convert

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerOutput(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(5*time.Second, 1, zap.NewNop())

	stdout, stderr, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(stdout)) != "out" || strings.TrimSpace(string(stderr)) != "err" {
		t.Errorf("stdout %q stderr %q", stdout, stderr)
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(50*time.Millisecond, 1, zap.NewNop())

	start := time.Now()
	_, _, err := r.Run(context.Background(), "sh", "-c", "exec sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("process not killed promptly")
	}
}

func TestExecRunnerCancelledIsNotTimeout(t *testing.T) {
	requireShell(t)
	r := NewExecRunner(5*time.Second, 1, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := r.Run(ctx, "sh", "-c", "exec sleep 5")
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("caller deadline reported as converter timeout: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestExecRunnerWaitsForSlot(t *testing.T) {
	r := NewExecRunner(time.Second, 1, zap.NewNop())
	// Hold the only slot.
	if err := r.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := r.Run(ctx, "sh", "-c", "true"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded while waiting for a slot", err)
	}
}
