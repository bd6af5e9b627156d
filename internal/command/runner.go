// Package command runs the single configured check command as a child process.
//
// The command name and arguments are fixed when the Runner is built and are
// identical for every commit. The child inherits the server's environment and
// working directory; nothing about the triggering commit is passed to it.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"
)

const (
	// DefaultOutputLimit caps each captured stream.
	DefaultOutputLimit = 32 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// pipeDrainDelay bounds how long Wait keeps reading after the child exits,
	// for descendants that still hold its stdout or stderr.
	pipeDrainDelay = 2 * time.Second

	truncatedMarker = "\n[output truncated]"
)

// ExecError reports that the command could not be run at all.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Result is the outcome of one invocation.
// ExitCode is nil when the process was terminated by a signal.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode *int
	Duration time.Duration
	TimedOut bool
}

// ExitCodeString renders the exit code, or "none" when killed by a signal.
func (r *Result) ExitCodeString() string {
	if r.ExitCode == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *r.ExitCode)
}

// Summary is a one-line description used as the check run summary.
func (r *Result) Summary() string {
	verb := "failed"
	if r.Success {
		verb = "succeeded"
	}
	s := fmt.Sprintf("Command %s (exit code: %s)", verb, r.ExitCodeString())
	if r.TimedOut {
		s += " after timing out"
	}
	return s
}

// Runner holds one fixed command line.
type Runner struct {
	name        string
	args        []string
	timeout     time.Duration
	outputLimit int
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout terminates the child after d (SIGTERM, then SIGKILL after a grace period).
// Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithOutputLimit caps how many bytes of each stream are kept. Zero keeps the default.
func WithOutputLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.outputLimit = n
		}
	}
}

// New creates a Runner for name and args. args is copied.
func New(name string, args []string, opts ...Option) *Runner {
	r := &Runner{
		name:        name,
		args:        append([]string(nil), args...),
		outputLimit: DefaultOutputLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// String renders the command line for logs.
func (r *Runner) String() string {
	return strings.TrimSpace(r.name + " " + strings.Join(r.args, " "))
}

// Execute spawns the command, waits for it and captures its output.
// The only error is failure to start or reap the process (*ExecError).
func (r *Runner) Execute(ctx context.Context) (*Result, error) {
	cmd := exec.Command(r.name, r.args...)
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	stdout := &cappedBuffer{limit: r.outputLimit}
	stderr := &cappedBuffer{limit: r.outputLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecError{Command: r.name, Err: err}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var err error
	timedOut := false
	select {
	case err = <-waitErr:
	case <-timeoutC:
		timedOut = true
		err = terminate(cmd, waitErr)
	case <-ctx.Done():
		err = terminate(cmd, waitErr)
	}

	if errors.Is(err, exec.ErrWaitDelay) {
		// Exited cleanly; a descendant kept the output pipes open.
		err = nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ExecError{Command: r.name, Err: fmt.Errorf("wait for process: %w", err)}
		}
	}

	res := &Result{
		Success:  cmd.ProcessState.Success() && !timedOut,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		res.ExitCode = &code
	}
	return res, nil
}

// terminate sends SIGTERM to the child's process group, escalates to SIGKILL
// after the grace period and returns the Wait error.
func terminate(cmd *exec.Cmd, waitErr <-chan error) error {
	signalGroup(cmd, syscall.SIGTERM)

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case err := <-waitErr:
		return err
	case <-grace.C:
		signalGroup(cmd, syscall.SIGKILL)
		return <-waitErr
	}
}

// cappedBuffer keeps the first limit bytes written and silently drops the rest,
// so a chatty child never blocks on a full pipe.
type cappedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String decodes the captured bytes leniently, replacing each invalid byte with U+FFFD.
func (b *cappedBuffer) String() string {
	s := lossyUTF8(b.buf)
	if b.truncated {
		s += truncatedMarker
	}
	return s
}

func lossyUTF8(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	var sb strings.Builder
	sb.Grow(len(p) + 8)
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(p[:size])
		}
		p = p[size:]
	}
	return sb.String()
}
