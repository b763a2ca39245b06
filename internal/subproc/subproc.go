// Package subproc runs one-shot helper processes (python model scripts)
// bound to a context, capturing stdout and the tail of stderr.
package subproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrTail bounds how much stderr is kept for error messages.
const stderrTail = 2048

// waitDelay bounds how long Run waits for pipes after the process is killed.
const waitDelay = 2 * time.Second

// ErrStart is wrapped by Run when the process could not be started at all.
var ErrStart = errors.New("subprocess did not start")

// Error reports a non-zero exit.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Run executes name with args and returns its stdout. The process is killed
// when ctx is done; the returned error then wraps ctx.Err().
func Run(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", name, ctx.Err())
	}

	tail := lastBytes(stderr.String(), stderrTail)
	if tail != "" {
		logger.Debug("subprocess stderr", "cmd", name, "stderr", tail)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &Error{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail,
				Err:      err,
			}
		}
		return nil, fmt.Errorf("%s: %w: %w", name, ErrStart, err)
	}

	logger.Debug("subprocess finished", "cmd", name, "elapsed_ms", elapsed.Milliseconds(), "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

func lastBytes(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
