package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands as child processes. At most maxProcs run at
// once process-wide; each is killed after timeout.
type ExecRunner struct {
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

func NewExecRunner(timeout time.Duration, maxProcs int, logger *zap.Logger) *ExecRunner {
	if maxProcs < 1 {
		maxProcs = 1
	}
	return &ExecRunner{
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(maxProcs)),
		logger:  logger,
	}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, fmt.Errorf("waiting for a converter slot: %w", err)
	}
	defer r.sem.Release(1)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Debug("running command", zap.String("cmd_line", strings.Join(append([]string{name}, args...), " ")))

	cmd := exec.CommandContext(runCtx, name, args...)
	// Grandchildren holding stdout open must not keep Wait blocked after a kill.
	cmd.WaitDelay = 2 * time.Second
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error("exec failed",
			zap.String("cmd", name),
			zap.Strings("args", args),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Error(err),
			zap.String("stderr", truncate(errb.String(), 8<<10)),
		)
		// The parent context being done is a cancellation, not our timeout.
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return out.Bytes(), errb.Bytes(), fmt.Errorf("%w after %s: %s", ErrTimeout, r.timeout, name)
		}
		if ctx.Err() != nil {
			return out.Bytes(), errb.Bytes(), ctx.Err()
		}
		return out.Bytes(), errb.Bytes(), err
	}

	r.logger.Debug("exec ok",
		zap.String("cmd", name),
		zap.Int64("duration_ms", dur.Milliseconds()),
		zap.Int("stdout_bytes", out.Len()),
		zap.Int("stderr_bytes", errb.Len()),
	)
	return out.Bytes(), errb.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
