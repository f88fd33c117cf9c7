// Package pipeline runs one check, archive, transfer and cleanup sequence.
//
// Every step failure is handled where it happens: it is reported on the
// console, logged as a structured record and folded into the Result. Nothing
// unwinds past its step, and every run ends with the closing banner.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/shipwatch/internal/archive"
	"github.com/blackwell-systems/shipwatch/internal/output"
	"github.com/blackwell-systems/shipwatch/internal/proc"
	"github.com/blackwell-systems/shipwatch/internal/transfer"
)

// Timeouts bound each step. Zero means no bound beyond the parent context.
type Timeouts struct {
	Check    time.Duration
	Archive  time.Duration
	Transfer time.Duration
}

// Plan is the resolved configuration for one run.
type Plan struct {
	Process string
	// Strict turns an unavailable checker into CheckUnavailable instead of
	// assuming the process is not running.
	Strict bool

	Source      string
	ArchivePath string
	Passphrase  string

	// Remote.Name is derived per run and ignored here.
	Remote transfer.Destination

	Hostname string
	Timeouts Timeouts

	// ExitZero is the effective exit-zero setting, so the logged exit code
	// matches the process status.
	ExitZero bool
}

// Result describes what one run did.
type Result struct {
	ID      string
	Outcome Outcome

	// Err is the failure that decided the outcome, if any.
	Err *StepError
	// CheckErr is set when the checker failed but the run went on as if the
	// process were not running.
	CheckErr *StepError
	// CleanupErr is set when the local archive could not be removed after a
	// successful transfer. The outcome stays Transferred.
	CleanupErr *StepError

	CheckerDegraded bool

	RemoteName   string
	ArchivePath  string
	ArchiveBytes int64
	Checksum     string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Kind returns the error kind of the deciding failure, or KindNone.
func (r *Result) Kind() ErrorKind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

// ExitCode maps the outcome to a process exit status.
func (r *Result) ExitCode(exitZero bool) int {
	return r.Outcome.ExitCode(exitZero)
}

// Pipeline wires the three collaborators together.
type Pipeline struct {
	Lister   proc.Lister
	Archiver archive.Archiver
	Copier   transfer.Copier

	Console *output.Console
	Logger  *slog.Logger

	// Now, NewID and Remove default to time.Now, uuid.NewString and os.Remove.
	Now    func() time.Time
	NewID  func() string
	Remove func(string) error
}

func (p *Pipeline) defaults() {
	if p.Console == nil {
		p.Console = output.NewConsole(nil, true)
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.DiscardHandler)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.NewID == nil {
		p.NewID = uuid.NewString
	}
	if p.Remove == nil {
		p.Remove = os.Remove
	}
}

// Run executes the pipeline once and always returns a Result.
func (p *Pipeline) Run(ctx context.Context, plan Plan) *Result {
	p.defaults()

	res := &Result{ID: p.NewID(), StartedAt: p.Now()}
	log := p.Logger.With("run_id", res.ID, "process", plan.Process)

	p.Console.Banner(res.StartedAt, plan.Hostname)
	log.Debug("run started", "hostname", plan.Hostname, "source", plan.Source)

	p.execute(ctx, plan, res, log)

	res.FinishedAt = p.Now()
	p.Console.Footer()

	attrs := []any{
		"outcome", res.Outcome.String(),
		"error_kind", res.Kind().String(),
		"exit_code", res.ExitCode(plan.ExitZero),
		"checker_degraded", res.CheckerDegraded,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	}
	if res.RemoteName != "" && res.Outcome == Transferred {
		attrs = append(attrs, "remote_name", res.RemoteName)
	}
	if res.ArchiveBytes > 0 {
		attrs = append(attrs, "archive_bytes", res.ArchiveBytes, "checksum", res.Checksum)
	}
	level := slog.LevelInfo
	if res.Err != nil && res.Err.Kind != FileNotFound {
		level = slog.LevelError
	}
	log.Log(ctx, level, "run complete", attrs...)

	return res
}

func (p *Pipeline) execute(ctx context.Context, plan Plan, res *Result, log *slog.Logger) {
	con := p.Console

	// 1. Presence check
	con.Printf("Checking status for program: '%s'...", plan.Process)
	running, err := p.check(ctx, plan)
	if err != nil {
		se := stepError(StepCheck, err)
		if plan.Strict || se.Kind == Interrupted {
			res.Outcome = CheckUnavailable
			res.Err = se
			con.Printf("Error: could not check process status (%v). Nothing archived.", err)
			log.Error("process check failed", "error_kind", se.Kind.String(), "error", err)
			return
		}

		res.CheckErr = se
		res.CheckerDegraded = true
		if se.Kind == CheckerUnavailable {
			con.Println("Error: process checker not found. Cannot check process status.")
		} else {
			con.Printf("An unexpected error occurred during process check: %v", err)
		}
		log.Warn("process check unavailable, assuming not running",
			"error_kind", se.Kind.String(), "error", err)
	}

	// 2. Gate
	if running {
		res.Outcome = SkippedRunning
		con.Printf("Status: '%s' is running. No transfer initiated.", plan.Process)
		log.Info("process is running", "step", StepCheck)
		return
	}
	con.Printf("Status: '%s' is NOT running (PID not found). Initiating file transfer check...", plan.Process)

	// 3. Source
	info, err := os.Stat(plan.Source)
	switch {
	case err != nil:
		res.Outcome = SkippedNoFile
		kind := FileNotFound
		if !errors.Is(err, os.ErrNotExist) {
			kind = Unexpected
		}
		res.Err = &StepError{Kind: kind, Step: StepSource, Err: err}
		con.Printf("WARNING: Local file '%s' not found. Transfer skipped.", plan.Source)
		log.Warn("source file not found", "source", plan.Source, "error_kind", kind.String(), "error", err)
		return
	case info.IsDir():
		res.Outcome = SkippedNoFile
		res.Err = &StepError{Kind: FileNotFound, Step: StepSource, Err: fmt.Errorf("%s is a directory", plan.Source)}
		con.Printf("WARNING: Local path '%s' is a directory, not a file. Transfer skipped.", plan.Source)
		log.Warn("source is a directory", "source", plan.Source)
		return
	}

	// 4. Archive
	res.RemoteName = transfer.RemoteName(res.StartedAt, p.Archiver.Extension())
	con.Printf("Found local file: %s. Preparing encrypted archive...", plan.Source)

	if err := p.archive(ctx, plan); err != nil {
		se := stepError(StepArchive, err)
		res.Outcome = ArchiveFailed
		res.Err = se
		switch se.Kind {
		case ArchiveToolMissing:
			con.Println("Error: archive tool not found. Please install the zip package.")
		case TimedOut:
			con.Printf("FAILURE: Archiving timed out after %s.", plan.Timeouts.Archive)
		case Interrupted:
			con.Println("FAILURE: Archiving was interrupted.")
		default:
			con.Println("FAILURE: Could not create or encrypt the archive.")
		}
		log.Error("archive failed", "step", StepArchive, "error_kind", se.Kind.String(), "error", err)
		return
	}

	res.ArchivePath = plan.ArchivePath
	if st, err := os.Stat(plan.ArchivePath); err == nil {
		res.ArchiveBytes = st.Size()
	}
	if sum, err := archive.Checksum(plan.ArchivePath); err == nil {
		res.Checksum = sum
	} else {
		log.Warn("could not checksum archive", "error", err)
	}
	con.Printf("SUCCESS: File successfully zipped and encrypted locally as %s (%s).",
		plan.ArchivePath, output.FormatSize(res.ArchiveBytes))
	log.Info("archive created", "archive", plan.ArchivePath,
		"archive_bytes", res.ArchiveBytes, "checksum", res.Checksum)

	// 5. Transfer
	dst := plan.Remote
	dst.Name = res.RemoteName
	con.Printf("Attempting SCP transfer of %s to %s as %s...", plan.ArchivePath, dst.Host, dst.Name)

	tctx, cancel := withTimeout(ctx, plan.Timeouts.Transfer)
	err = p.Copier.Copy(tctx, plan.ArchivePath, dst)
	cancel()
	if err != nil {
		se := stepError(StepTransfer, err)
		res.Outcome = TransferFailed
		res.Err = se
		switch se.Kind {
		case TransferToolMissing:
			con.Println("Error: 'scp' utility not found. Please ensure OpenSSH client is installed.")
		case TimedOut:
			con.Printf("FAILURE: SCP transfer timed out after %s.", plan.Timeouts.Transfer)
		case Interrupted:
			con.Println("FAILURE: SCP transfer was interrupted.")
		default:
			con.Println("FAILURE: SCP transfer failed. Check SSH key path/permissions, remote path, and network connection.")
		}
		con.Println("The local archive was kept for manual inspection.")
		log.Error("transfer failed", "step", StepTransfer, "error_kind", se.Kind.String(),
			"target", dst.Target(), "error", err)
		return
	}

	res.Outcome = Transferred
	con.Printf("SUCCESS: Encrypted archive transferred successfully and renamed to %s.", dst.Name)
	log.Info("archive transferred", "target", dst.Target())

	// 6. Cleanup
	if err := p.Remove(plan.ArchivePath); err != nil {
		res.CleanupErr = &StepError{Kind: Unexpected, Step: StepCleanup, Err: err}
		con.Printf("An unexpected error occurred during cleanup: %v", err)
		log.Error("cleanup failed", "step", StepCleanup, "error_kind", Unexpected.String(), "error", err)
		return
	}
	con.Printf("Cleanup: Local archive %s removed.", plan.ArchivePath)
}

func (p *Pipeline) check(ctx context.Context, plan Plan) (bool, error) {
	cctx, cancel := withTimeout(ctx, plan.Timeouts.Check)
	defer cancel()
	return p.Lister.Running(cctx, plan.Process)
}

// archive shows a spinner for the native archiver, which prints nothing
// itself. zip reports its own progress.
func (p *Pipeline) archive(ctx context.Context, plan Plan) error {
	actx, cancel := withTimeout(ctx, plan.Timeouts.Archive)
	defer cancel()

	if _, native := p.Archiver.(*archive.AgeZip); !native {
		return p.Archiver.Archive(actx, plan.Source, plan.ArchivePath, plan.Passphrase)
	}

	spinner := p.Console.Spinner("Encrypting archive")
	if plan.Timeouts.Archive > 0 {
		spinner.WithTimeout(plan.Timeouts.Archive)
	}
	start := p.Now()
	spinner.Start()
	err := p.Archiver.Archive(actx, plan.Source, plan.ArchivePath, plan.Passphrase)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage(fmt.Sprintf("Encrypted with age in %s.", p.Now().Sub(start).Round(time.Millisecond)))
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
