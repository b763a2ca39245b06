// Package worker runs one long-lived subprocess that answers line-delimited
// JSON requests, one at a time.
//
// Requests are queued and written to the child's stdin in arrival order. A
// single goroutine owns the pipes and keeps exactly one request outstanding,
// so response lines pair with requests by position. A caller that gives up
// (context cancelled) does not desynchronize the stream: its response is
// still read and then discarded.
package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Sentinel errors for the worker package.
var (
	// ErrClosed indicates the worker was closed by its owner.
	ErrClosed = errors.New("worker: closed")

	// ErrExited indicates the child process exited or closed stdout.
	ErrExited = errors.New("worker: process exited")

	// ErrMissingCommand indicates Config.Command was empty.
	ErrMissingCommand = errors.New("worker: command is required")
)

// Config describes the child process.
type Config struct {
	Command string
	Args    []string
	Dir     string

	// Env is appended to the parent's environment.
	Env []string

	// QueueSize bounds the number of requests waiting to be written.
	QueueSize int

	// MaxLineBytes bounds a single response line. Base64 audio is large.
	MaxLineBytes int

	// StopTimeout is how long Close waits for a clean exit before killing.
	StopTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = 64 << 20
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 3 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type request struct {
	line []byte
	resp chan result // buffered(1); the run loop never blocks on it
}

type result struct {
	line []byte
	err  error
}

// Worker is a running subprocess. It is safe for concurrent use.
type Worker struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	reqs   chan *request
	quit   chan struct{}
	done   chan struct{} // closed when run returns
	exited chan struct{} // closed after the child is reaped
	logger *slog.Logger

	closeOnce sync.Once
	waitErr   error
}

// Start launches the child process and its request loop.
func Start(cfg Config) (*Worker, error) {
	if cfg.Command == "" {
		return nil, ErrMissingCommand
	}
	cfg.withDefaults()

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start %s: %w", cfg.Command, err)
	}

	w := &Worker{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte),
		reqs:   make(chan *request, cfg.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: cfg.Logger.With("component", "worker", "cmd", cfg.Command, "pid", cmd.Process.Pid),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		w.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		w.logStderr(stderr)
	}()
	go func() {
		readers.Wait()
		w.reap()
	}()
	go w.run()

	w.logger.Info("worker started")
	return w, nil
}

// Call sends req as one JSON line and decodes the matching response line
// into resp. It blocks until the response arrives, ctx is done, or the
// worker stops.
func (w *Worker) Call(ctx context.Context, req, resp any) error {
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("worker: marshal request: %w", err)
	}

	raw, err := w.Do(ctx, line)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("worker: decode response: %w", err)
	}
	return nil
}

// Do sends one raw line (without trailing newline) and returns the raw
// response line.
func (w *Worker) Do(ctx context.Context, line []byte) ([]byte, error) {
	if bytes.IndexByte(line, '\n') >= 0 {
		return nil, errors.New("worker: request contains newline")
	}

	r := &request{line: line, resp: make(chan result, 1)}

	select {
	case w.reqs <- r:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, ErrClosed
	case <-w.exited:
		return nil, ErrExited
	}

	select {
	case res := <-r.resp:
		return res.line, res.err
	case <-ctx.Done():
		// The run loop still consumes and drops the response.
		return nil, ctx.Err()
	case <-w.done:
		select {
		case res := <-r.resp:
			return res.line, res.err
		default:
			return nil, ErrClosed
		}
	}
}

// run is the only goroutine that touches stdin and the line stream.
func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			w.drain(ErrClosed)
			return
		case r := <-w.reqs:
			res := w.roundTrip(r.line)
			r.resp <- res
			if errors.Is(res.err, ErrExited) || errors.Is(res.err, ErrClosed) {
				w.drain(res.err)
				return
			}
		}
	}
}

func (w *Worker) roundTrip(line []byte) result {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := w.stdin.Write(buf); err != nil {
		return result{err: fmt.Errorf("%w: write: %v", ErrExited, err)}
	}

	select {
	case out, ok := <-w.lines:
		if !ok {
			return result{err: ErrExited}
		}
		return result{line: out}
	case <-w.quit:
		return result{err: ErrClosed}
	}
}

// drain fails every queued request once the loop can no longer serve them.
func (w *Worker) drain(err error) {
	for {
		select {
		case r := <-w.reqs:
			r.resp <- result{err: err}
		default:
			return
		}
	}
}

func (w *Worker) readStdout(stdout io.Reader) {
	defer close(w.lines)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), w.cfg.MaxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		select {
		case w.lines <- out:
		case <-w.quit:
			return
		}
	}
	if err := sc.Err(); err != nil {
		w.logger.Warn("worker stdout read failed", "error", err)
	}
}

func (w *Worker) logStderr(stderr io.Reader) {
	sc := bufio.NewScanner(stderr)
	for sc.Scan() {
		w.logger.Debug("worker stderr", "line", sc.Text())
	}
}

// reap waits for the child once both pipes are drained.
func (w *Worker) reap() {
	w.waitErr = w.cmd.Wait()
	close(w.exited)
	if w.waitErr != nil {
		w.logger.Warn("worker exited", "error", w.waitErr)
	} else {
		w.logger.Info("worker exited")
	}
}

// Exited is closed when the child process has exited.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

// Close stops the worker. It closes stdin, waits up to StopTimeout for the
// child to exit, then kills it. Close is idempotent.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.quit)
		_ = w.stdin.Close()

		select {
		case <-w.exited:
		case <-time.After(w.cfg.StopTimeout):
			w.logger.Warn("worker did not exit, killing")
			_ = w.cmd.Process.Kill()
			<-w.exited
		}
	})
	return nil
}
