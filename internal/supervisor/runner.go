package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
	"unicode/utf8"
)

// Command is one external process invocation
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Outcome describes how a finished process ended
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Runner runs external commands. A non-nil error means the command could not
// be run at all; a process that ran and failed is reported through Outcome.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Outcome, error)
}

// ExecRunner runs commands as OS processes in their own process group, so a
// timeout takes down everything the command spawned.
type ExecRunner struct {
	// KillGrace bounds how long to wait for output pipes after a kill.
	KillGrace time.Duration
	// TailLimit is the number of trailing output bytes kept per stream.
	TailLimit int
}

func (r ExecRunner) Run(ctx context.Context, c Command) (*Outcome, error) {
	if c.Name == "" {
		return nil, errors.New("command is required")
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	stdout := newTailBuffer(r.TailLimit)
	stderr := newTailBuffer(r.TailLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.KillGrace
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}
	err := cmd.Wait()

	out := &Outcome{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return out, fmt.Errorf("%s interrupted: %w", c.Name, ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.TimedOut = true
		return out, nil
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return out, fmt.Errorf("%s failed: %w", c.Name, err)
	}
	return out, nil
}

// tailBuffer keeps only the last limit bytes written to it
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = 4000
	}
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > 2*t.limit {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-t.limit:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	b := t.buf
	if len(b) > t.limit {
		b = b[len(b)-t.limit:]
	}
	// Drop a rune split by the cut.
	for len(b) > 0 && !utf8.RuneStart(b[0]) {
		b = b[1:]
	}
	return string(b)
}

// Tail returns at most the last n bytes of s, starting on a rune boundary
func Tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}
