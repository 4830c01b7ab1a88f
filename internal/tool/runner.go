// Package tool runs the external conversion utilities and reports their
// outcome as values instead of errors.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrToolNotFound means the binary is not installed or not on PATH
	ErrToolNotFound = errors.New("tool not found")
	// ErrTimedOut means the tool was killed after exceeding its timeout
	ErrTimedOut = errors.New("tool timed out")
)

// stderrTail bounds how much stderr is kept in a Result
const stderrTail = 2048

// Result is the outcome of one tool invocation
type Result struct {
	Command  []string
	ExitCode int // -1 when the process never ran or was killed
	Stderr   string
	Duration time.Duration
	Err      error
}

// OK reports whether the tool ran and exited with status 0
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes a binary with arguments
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// Timeout bounds each invocation; zero means no limit
	Timeout time.Duration
}

// NewExecRunner creates a runner with an optional per-invocation timeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run executes the command and blocks until it exits
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) Result {
	res := Result{
		Command:  append([]string{name}, args...),
		ExitCode: -1,
	}

	path, err := exec.LookPath(name)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s", ErrToolNotFound, name)
		return res
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	res.Duration = time.Since(start)
	res.Stderr = tail(stderr.String(), stderrTail)

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
	case r.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Errorf("%w after %v: %s", ErrTimedOut, r.Timeout, name)
	case ctx.Err() != nil:
		res.Err = fmt.Errorf("%s: %w", name, ctx.Err())
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Err = fmt.Errorf("%s exited with status %d", name, res.ExitCode)
		} else {
			res.Err = fmt.Errorf("run %s: %w", name, err)
		}
	}

	return res
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
