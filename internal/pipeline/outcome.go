package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackwell-systems/shipwatch/internal/proc"
	"github.com/blackwell-systems/shipwatch/internal/toolexec"
)

// Outcome is the single result of one run.
type Outcome int

const (
	SkippedRunning Outcome = iota
	SkippedNoFile
	Transferred
	ArchiveFailed
	TransferFailed
	CheckUnavailable
	ConfigInvalid
)

var outcomeNames = map[Outcome]string{
	SkippedRunning:   "skipped_running",
	SkippedNoFile:    "skipped_no_file",
	Transferred:      "transferred",
	ArchiveFailed:    "archive_failed",
	TransferFailed:   "transfer_failed",
	CheckUnavailable: "check_unavailable",
	ConfigInvalid:    "config_invalid",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Exit codes per outcome. ConfigInvalid uses EX_CONFIG from sysexits.h.
const (
	ExitOK               = 0
	ExitSkippedNoFile    = 3
	ExitCheckUnavailable = 4
	ExitArchiveFailed    = 5
	ExitTransferFailed   = 6
	ExitConfigInvalid    = 78
)

// ExitCode maps o to a process exit status. exitZero forces 0 for every
// pipeline outcome; an invalid configuration still exits non-zero.
func (o Outcome) ExitCode(exitZero bool) int {
	if o == ConfigInvalid {
		return ExitConfigInvalid
	}
	if exitZero {
		return ExitOK
	}
	switch o {
	case SkippedNoFile:
		return ExitSkippedNoFile
	case CheckUnavailable:
		return ExitCheckUnavailable
	case ArchiveFailed:
		return ExitArchiveFailed
	case TransferFailed:
		return ExitTransferFailed
	default:
		return ExitOK
	}
}

// ErrorKind classifies why a step did not succeed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	CheckerUnavailable
	FileNotFound
	ArchiveToolFailure
	ArchiveToolMissing
	TransferToolFailure
	TransferToolMissing
	TimedOut
	Interrupted
	Unexpected
)

var kindNames = map[ErrorKind]string{
	KindNone:            "",
	CheckerUnavailable:  "checker_unavailable",
	FileNotFound:        "file_not_found",
	ArchiveToolFailure:  "archive_tool_failure",
	ArchiveToolMissing:  "archive_tool_missing",
	TransferToolFailure: "transfer_tool_failure",
	TransferToolMissing: "transfer_tool_missing",
	TimedOut:            "timed_out",
	Interrupted:         "interrupted",
	Unexpected:          "unexpected",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Step names used in StepError and log records.
const (
	StepCheck    = "check"
	StepSource   = "source"
	StepArchive  = "archive"
	StepTransfer = "transfer"
	StepCleanup  = "cleanup"
)

// StepError is a classified failure of one pipeline step.
type StepError struct {
	Kind ErrorKind
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// classify maps a collaborator error onto an ErrorKind for step.
func classify(step string, err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, toolexec.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return TimedOut
	case errors.Is(err, toolexec.ErrInterrupted), errors.Is(err, context.Canceled):
		return Interrupted
	}

	missing := errors.Is(err, toolexec.ErrToolMissing)
	var exitErr *toolexec.ExitError
	failed := errors.As(err, &exitErr)

	switch step {
	case StepCheck:
		if missing || errors.Is(err, proc.ErrCheckerUnavailable) {
			return CheckerUnavailable
		}
	case StepArchive:
		if missing {
			return ArchiveToolMissing
		}
		// The native archiver has no exit status; any failure to produce
		// the artifact counts as an archiver failure.
		return ArchiveToolFailure
	case StepTransfer:
		if missing {
			return TransferToolMissing
		}
		if failed {
			return TransferToolFailure
		}
	}
	return Unexpected
}

func stepError(step string, err error) *StepError {
	return &StepError{Kind: classify(step, err), Step: step, Err: err}
}
