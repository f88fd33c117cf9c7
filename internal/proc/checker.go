// Package proc answers "is this process running right now?".
package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blackwell-systems/shipwatch/internal/toolexec"
)

// ErrCheckerUnavailable means the process table could not be consulted at all.
// Callers must not treat it as a clean "not running" without saying so.
var ErrCheckerUnavailable = errors.New("process checker unavailable")

// Lister reports whether a process is currently running.
type Lister interface {
	Running(ctx context.Context, name string) (bool, error)
}

// Pgrep checks the process table with `pgrep -x`, which matches the full
// process name rather than a substring.
type Pgrep struct {
	Tool    string // executable, default "pgrep"
	Timeout time.Duration
	Runner  *toolexec.Runner
}

// Running returns true when at least one process is named exactly name.
func (p *Pgrep) Running(ctx context.Context, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, fmt.Errorf("process name cannot be empty")
	}

	tool := p.Tool
	if tool == "" {
		tool = "pgrep"
	}
	runner := p.Runner
	if runner == nil {
		runner = &toolexec.Runner{}
	}

	err := runner.Run(ctx, toolexec.Invocation{
		Name:    tool,
		Args:    []string{"-x", name},
		Timeout: p.Timeout,
	})

	switch {
	case err == nil:
		return true, nil
	case toolexec.IsExitCode(err, 1):
		// pgrep: 1 = no processes matched
		return false, nil
	case errors.Is(err, toolexec.ErrToolMissing):
		return false, fmt.Errorf("%w: %v", ErrCheckerUnavailable, err)
	default:
		return false, fmt.Errorf("pgrep -x %s failed: %w", name, err)
	}
}

// PIDFile checks liveness of the process whose PID is stored in Path, using
// signal 0. A missing file, unparsable PID or dead process all mean "not running".
type PIDFile struct {
	Path string
}

// Running ignores name except for error messages.
func (p *PIDFile) Running(_ context.Context, name string) (bool, error) {
	if p.Path == "" {
		return false, fmt.Errorf("no PID file configured for %q", name)
	}

	pidData, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || pid <= 0 {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	// EPERM: the process exists but belongs to another user.
	if errors.Is(err, syscall.EPERM) {
		return true, nil
	}
	return false, nil
}
