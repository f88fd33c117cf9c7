package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/shipwatch/internal/archive"
	"github.com/blackwell-systems/shipwatch/internal/config"
	"github.com/blackwell-systems/shipwatch/internal/output"
	"github.com/blackwell-systems/shipwatch/internal/pipeline"
	"github.com/blackwell-systems/shipwatch/internal/proc"
	"github.com/blackwell-systems/shipwatch/internal/store"
	"github.com/blackwell-systems/shipwatch/internal/toolexec"
	"github.com/blackwell-systems/shipwatch/internal/transfer"
)

var (
	configPath string
	silent     bool
	exitZero   bool
	verbose    bool

	// RootCmd is the root command for shipwatch
	RootCmd = &cobra.Command{
		Use:   "shipwatch",
		Short: "Ship a file off-host when a process is not running",
		Long: `shipwatch checks whether a named process is running. If it is not, it
packs a designated file into an encrypted archive, copies it to a remote host
over scp under a timestamped name, and removes the local archive once the copy
succeeds. A failed copy keeps the archive for manual inspection.

Each invocation is one run; schedule it with cron or a systemd timer.

Exit codes:
  0   transferred, or the process is running
  3   source file not found
  4   process checker unavailable (process.strict)
  5   archive failed
  6   transfer failed
  78  invalid configuration

Examples:
  # Write a starter config to ~/.shipwatch/config.yaml
  shipwatch init

  # Check tools, key and configuration
  shipwatch doctor

  # One run, no console output
  SHIPWATCH_PASSPHRASE=... shipwatch --silent

  # Recent runs
  shipwatch history`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShip,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.shipwatch/config.yaml)")
	RootCmd.Flags().BoolVarP(&silent, "silent", "s", false, "suppress all console output, including external tools")
	RootCmd.Flags().BoolVar(&exitZero, "exit-zero", false, "exit 0 for every run outcome (configuration errors still exit 78)")
	RootCmd.Flags().BoolVar(&verbose, "verbose", false, "emit debug-level log records")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// ExitError carries a non-zero exit status out of a command. Its message has
// already been reported (or deliberately suppressed), so main only exits.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

func runShip(cmd *cobra.Command, args []string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := loadConfig()
	if err == nil {
		err = cfg.Validate()
	}

	logger, closeLog, logErr := newLogger(cfg, stderr)
	defer closeLog()
	if logErr != nil && !silent {
		fmt.Fprintf(stderr, "Warning: %v\n", logErr)
	}

	if err != nil {
		logger.Error("run complete",
			"outcome", pipeline.ConfigInvalid.String(),
			"exit_code", pipeline.ExitConfigInvalid,
			"error", err)
		// Still a run: it opens and closes like every other.
		console := output.NewConsole(stdout, silent)
		console.Banner(time.Now(), getHostname())
		if !silent {
			fmt.Fprintf(stderr, "Error: invalid configuration:\n%v\n", err)
		}
		console.Footer()
		return &ExitError{Code: pipeline.ExitConfigInvalid, Err: err}
	}

	console := output.NewConsole(stdout, silent)
	toolStderr := io.Writer(io.Discard)
	if !silent {
		toolStderr = stderr
	}

	p, err := buildPipeline(cfg, console, toolStderr, logger)
	if err != nil {
		// Validate already vetted the format; this is unreachable in practice.
		return &ExitError{Code: pipeline.ExitConfigInvalid, Err: err}
	}
	plan, err := buildPlan(cfg)
	if err != nil {
		return &ExitError{Code: pipeline.ExitConfigInvalid, Err: err}
	}

	res := p.Run(ctx, plan)
	recordRun(cfg, plan, res, logger)

	if code := res.ExitCode(plan.ExitZero); code != 0 {
		exitErr := &ExitError{Code: code}
		if res.Err != nil {
			exitErr.Err = res.Err
		}
		return exitErr
	}
	return nil
}

// newLogger builds the structured logger for one run. log_file gets JSON
// records whether or not the run is silent; otherwise non-silent runs log
// text to stderr and silent runs log nothing.
func newLogger(cfg *config.Config, stderr io.Writer) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	noop := func() {}

	if cfg == nil || cfg.LogFile == "" {
		return fallbackLogger(stderr, opts), noop, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
		return fallbackLogger(stderr, opts), noop, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fallbackLogger(stderr, opts), noop, fmt.Errorf("cannot open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, opts)), func() { f.Close() }, nil
}

func fallbackLogger(stderr io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	if silent {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(stderr, opts))
}

// buildPipeline wires real collaborators from cfg.
func buildPipeline(cfg *config.Config, console *output.Console, toolStderr io.Writer, logger *slog.Logger) (*pipeline.Pipeline, error) {
	runner := &toolexec.Runner{}

	var lister proc.Lister
	switch cfg.Process.Checker {
	case config.CheckerPIDFile:
		lister = &proc.PIDFile{Path: cfg.Process.PIDFile}
	default:
		lister = &proc.Pgrep{Tool: cfg.Tools.Pgrep, Runner: runner}
	}

	zipTool := &archive.ZipTool{
		Tool:   cfg.Tools.Zip,
		Runner: runner,
		Stdout: console.Writer(),
		Stderr: toolStderr,
	}
	archiver, err := archive.New(cfg.Archive.Format, zipTool)
	if err != nil {
		return nil, err
	}

	copier := &transfer.SCP{
		Tool:    cfg.Tools.SCP,
		KeyPath: cfg.Remote.KeyPath,
		Runner:  runner,
		Stdout:  console.Writer(),
		Stderr:  toolStderr,
	}

	return &pipeline.Pipeline{
		Lister:   lister,
		Archiver: archiver,
		Copier:   copier,
		Console:  console,
		Logger:   logger,
	}, nil
}

// buildPlan resolves cfg into the parameters of one run.
func buildPlan(cfg *config.Config) (pipeline.Plan, error) {
	passphrase, err := cfg.Passphrase()
	if err != nil {
		return pipeline.Plan{}, err
	}

	process := cfg.Process.Name
	if process == "" && cfg.Process.Checker == config.CheckerPIDFile {
		process = filepath.Base(cfg.Process.PIDFile)
	}

	return pipeline.Plan{
		Process:     process,
		Strict:      cfg.Process.Strict,
		Source:      cfg.Source,
		ArchivePath: cfg.Archive.Path,
		Passphrase:  passphrase,
		Remote: transfer.Destination{
			User: cfg.Remote.User,
			Host: cfg.Remote.Host,
			Port: cfg.Remote.Port,
			Dir:  cfg.Remote.Path,
		},
		Hostname: getHostname(),
		ExitZero: exitZero || cfg.ExitZero,
		Timeouts: pipeline.Timeouts{
			Check:    cfg.Timeouts.Check.Duration,
			Archive:  cfg.Timeouts.Archive.Duration,
			Transfer: cfg.Timeouts.Transfer.Duration,
		},
	}, nil
}

// recordRun appends res to the journal. Failures are logged and never change
// the outcome of the run.
func recordRun(cfg *config.Config, plan pipeline.Plan, res *pipeline.Result, logger *slog.Logger) {
	path, err := getJournalPath(cfg)
	if err != nil {
		logger.Warn("journal unavailable", "error", err)
		return
	}

	db, err := store.Open(path)
	if err != nil {
		logger.Warn("journal unavailable", "journal", path, "error", err)
		return
	}
	defer db.Close()

	if err := db.InsertRun(journalEntry(plan, res)); err != nil {
		logger.Warn("failed to record run", "journal", path, "error", err)
		return
	}
	logger.Debug("run recorded", "journal", path, "run_id", res.ID)
}

func journalEntry(plan pipeline.Plan, res *pipeline.Result) *store.Run {
	run := &store.Run{
		ID:              res.ID,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		Hostname:        plan.Hostname,
		Process:         plan.Process,
		Outcome:         res.Outcome.String(),
		ErrorKind:       res.Kind().String(),
		ArchiveBytes:    res.ArchiveBytes,
		Checksum:        res.Checksum,
		CheckerDegraded: res.CheckerDegraded,
	}
	if res.Outcome == pipeline.Transferred || res.Outcome == pipeline.TransferFailed {
		run.RemoteName = res.RemoteName
	}

	switch {
	case res.Err != nil:
		run.Error = res.Err.Error()
	case res.CleanupErr != nil:
		run.ErrorKind = res.CleanupErr.Kind.String()
		run.Error = res.CleanupErr.Error()
	case res.CheckErr != nil:
		run.Error = res.CheckErr.Error()
	}
	return run
}

// ExitCode extracts the process exit status from a command error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
