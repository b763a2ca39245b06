package subproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/teslashibe/kitchen-buddy/internal/log"
)

// TestHelperSubproc is the child process for the tests below.
func TestHelperSubproc(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_SUBPROC") == "" {
		return
	}
	switch os.Getenv("GO_WANT_HELPER_SUBPROC") {
	case "ok":
		fmt.Fprint(os.Stdout, "hello")
		os.Exit(0)
	case "fail":
		fmt.Fprint(os.Stderr, "model not found")
		os.Exit(2)
	case "hang":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	}
	os.Exit(1)
}

func helper(t *testing.T, mode string) {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_SUBPROC", mode)
}

func TestRunSuccess(t *testing.T) {
	helper(t, "ok")
	out, err := Run(context.Background(), log.Discard(), os.Args[0], "-test.run=TestHelperSubproc")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("stdout = %q, want hello", out)
	}
}

func TestRunExitError(t *testing.T) {
	helper(t, "fail")
	_, err := Run(context.Background(), log.Discard(), os.Args[0], "-test.run=TestHelperSubproc")

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want *Error", err)
	}
	if pe.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", pe.ExitCode)
	}
	if pe.Stderr != "model not found" {
		t.Errorf("Stderr = %q", pe.Stderr)
	}
}

func TestRunContextDeadline(t *testing.T) {
	helper(t, "hang")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, log.Discard(), os.Args[0], "-test.run=TestHelperSubproc")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Run should return promptly after the deadline")
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), nil, "/nonexistent/python-binary")
	if !errors.Is(err, ErrStart) {
		t.Errorf("Run() error = %v, want ErrStart", err)
	}
}

func TestLastBytes(t *testing.T) {
	if got := lastBytes("  abc  ", 10); got != "abc" {
		t.Errorf("lastBytes = %q", got)
	}
	if got := lastBytes("abcdef", 3); got != "...def" {
		t.Errorf("lastBytes = %q", got)
	}
}
