// Package toolexec runs the external helper programs shipwatch delegates to
// (pgrep, zip, scp) and classifies how they failed.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrToolMissing means the executable could not be found or started.
	ErrToolMissing = errors.New("tool not installed")

	// ErrTimedOut means the invocation exceeded its own timeout.
	ErrTimedOut = errors.New("tool timed out")

	// ErrInterrupted means the parent context was cancelled (e.g. SIGINT).
	ErrInterrupted = errors.New("tool interrupted")
)

// stderrTail bounds how much captured stderr an ExitError keeps.
const stderrTail = 2048

// waitDelay bounds how long Run waits for output pipes to close after the
// tool's process group has been killed.
const waitDelay = 2 * time.Second

// ExitError reports a tool that ran and exited with a non-zero status.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.Code, e.Stderr)
}

// Invocation describes one external command.
type Invocation struct {
	Name    string
	Args    []string
	Timeout time.Duration

	// Stdout and Stderr receive the tool's output. Nil discards it.
	// Stderr is additionally captured for ExitError regardless.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs. Callers must redact secrets
// before logging arguments that carry them.
func (inv Invocation) String() string {
	return strings.TrimSpace(inv.Name + " " + strings.Join(inv.Args, " "))
}

// Runner executes invocations. The zero value is ready to use.
type Runner struct {
	// LookPath resolves executables; nil means exec.LookPath.
	LookPath func(string) (string, error)
}

// Run executes inv and blocks until it exits, times out, or ctx is done.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	path, err := r.lookPath(inv.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", inv.Name, ErrToolMissing)
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	//nolint:gosec // G204: arguments are assembled from validated configuration
	cmd := exec.CommandContext(runCtx, path, inv.Args...)
	cmd.Stdin = nil
	cmd.Stdout = inv.Stdout

	// Run the tool in its own process group so a timeout also kills the
	// children it spawns (scp starts ssh), which would otherwise hold the
	// output pipes open and block Wait.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = waitDelay

	var captured bytes.Buffer
	if inv.Stderr != nil {
		cmd.Stderr = io.MultiWriter(inv.Stderr, &captured)
	} else {
		cmd.Stderr = &captured
	}

	err = cmd.Run()
	if err == nil {
		return nil
	}

	// Context errors take priority: a killed process also reports an ExitError.
	switch runCtx.Err() {
	case context.DeadlineExceeded:
		return fmt.Errorf("%s: %w", inv.Name, ErrTimedOut)
	case context.Canceled:
		return fmt.Errorf("%s: %w", inv.Name, ErrInterrupted)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Tool:   inv.Name,
			Code:   exitErr.ExitCode(),
			Stderr: tail(captured.String()),
		}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", inv.Name, ErrToolMissing)
	}
	return fmt.Errorf("%s failed: %w", inv.Name, err)
}

// Available reports whether name resolves to an executable.
func (r *Runner) Available(name string) (string, bool) {
	path, err := r.lookPath(name)
	return path, err == nil
}

func (r *Runner) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}

// IsExitCode reports whether err is an ExitError with the given code.
func IsExitCode(err error, code int) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Code == code
}
