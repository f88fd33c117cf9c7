package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/shipwatch/internal/config"
	"github.com/blackwell-systems/shipwatch/internal/output"
	"github.com/blackwell-systems/shipwatch/internal/proc"
	"github.com/blackwell-systems/shipwatch/internal/store"
	"github.com/blackwell-systems/shipwatch/internal/toolexec"
	"github.com/blackwell-systems/shipwatch/internal/transfer"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, tools and credentials before a run",
	Long: `Runs preflight checks without archiving or copying anything.

Checks:
  • Configuration loads and validates
  • pgrep, zip and scp are on PATH
  • The monitored process status
  • The source file exists
  • The SSH key parses and is usable in batch mode
  • The archive directory is writable
  • The run journal is accessible`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

// doctorRunner resolves tools the same way a run does.
var doctorRunner = &toolexec.Runner{}

func runDoctor(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Running shipwatch diagnostics...")
	fmt.Fprintln(w)

	// Critical issues make a run fail outright; warnings degrade or skip it.
	criticalIssues := 0
	warningIssues := 0
	ok := func(format string, a ...interface{}) { fmt.Fprintf(w, "✓ "+format+"\n", a...) }
	warn := func(format string, a ...interface{}) {
		fmt.Fprintf(w, "⚠ "+format+"\n", a...)
		warningIssues++
	}
	fail := func(format string, a ...interface{}) {
		fmt.Fprintf(w, "✗ "+format+"\n", a...)
		criticalIssues++
	}

	// Check 1: Configuration
	cfg, path, err := loadConfig()
	if err != nil {
		fail("Cannot load config: %v", err)
		fmt.Fprintln(w, "  Action: Run 'shipwatch init' to create one")
		return doctorSummary(w, criticalIssues, warningIssues)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		ok("Config loaded: %s", path)
	} else {
		ok("Config from environment (no file at %s)", path)
	}
	if err := cfg.Validate(); err != nil {
		fail("Config is invalid:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	} else {
		ok("Config is valid")
	}

	// Check 2: External tools
	checkTool := func(name, purpose string, critical bool) {
		if p, found := doctorRunner.Available(name); found {
			ok("%s found: %s", purpose, p)
			return
		}
		if critical {
			fail("%s not found on PATH: %s", purpose, name)
		} else {
			warn("%s not found on PATH: %s (runs will assume the process is not running)", purpose, name)
		}
	}
	if cfg.Process.Checker != config.CheckerPIDFile {
		checkTool(cfg.Tools.Pgrep, "Process checker", cfg.Process.Strict)
	}
	if cfg.Archive.Format == "" || cfg.Archive.Format == "zip" {
		checkTool(cfg.Tools.Zip, "Archiver", true)
	} else {
		ok("Archiver: built-in age encryption")
	}
	checkTool(cfg.Tools.SCP, "Secure copy client", true)

	// Check 3: Process status
	if cfg.Process.Name != "" || cfg.Process.PIDFile != "" {
		checkProcess(cfg, ok, warn)
	}

	// Check 4: Source file
	if cfg.Source != "" {
		info, err := os.Stat(cfg.Source)
		switch {
		case err != nil:
			warn("Source file not found: %s (runs will skip the transfer)", cfg.Source)
		case info.IsDir():
			warn("Source is a directory, not a file: %s", cfg.Source)
		default:
			ok("Source file found: %s (%s)", cfg.Source, output.FormatSize(info.Size()))
		}
	}

	// Check 5: SSH key
	if cfg.Remote.KeyPath != "" {
		report, err := transfer.CheckKey(cfg.Remote.KeyPath)
		switch {
		case err != nil:
			fail("SSH key unusable: %v", err)
		case len(report.Problems()) > 0:
			for _, p := range report.Problems() {
				fail("SSH key %s: %s", report.Path, p)
			}
		default:
			ok("SSH key %s (%s)", report.Fingerprint, report.Type)
		}
	}

	// Check 6: Archive directory writable
	if cfg.Archive.Path != "" {
		dir := filepath.Dir(cfg.Archive.Path)
		tmp, err := os.MkdirTemp(dir, ".shipwatch-doctor-*")
		if err != nil {
			fail("Archive directory not writable: %s", dir)
		} else {
			os.RemoveAll(tmp)
			ok("Archive directory writable: %s", dir)
		}
		if _, err := os.Stat(cfg.Archive.Path); err == nil {
			warn("A local archive from an earlier failed transfer exists: %s", cfg.Archive.Path)
		}
	}

	// Check 7: Journal
	if journalPath, err := getJournalPath(cfg); err != nil {
		warn("Journal path error: %v", err)
	} else if db, err := store.Open(journalPath); err != nil {
		warn("Journal not accessible: %v", err)
	} else {
		latest, err := db.LatestRun()
		db.Close()
		switch {
		case err != nil:
			warn("Cannot read journal: %v", err)
		case latest == nil:
			ok("Journal ready: %s (no runs yet)", journalPath)
		default:
			ok("Journal ready: %s (last run %s, %s)", journalPath, latest.Outcome,
				latest.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}
	}

	return doctorSummary(w, criticalIssues, warningIssues)
}

func checkProcess(cfg *config.Config, ok, warn func(string, ...interface{})) {
	var lister proc.Lister = &proc.Pgrep{Tool: cfg.Tools.Pgrep, Runner: doctorRunner, Timeout: cfg.Timeouts.Check.Duration}
	name := cfg.Process.Name
	if cfg.Process.Checker == config.CheckerPIDFile {
		lister = &proc.PIDFile{Path: cfg.Process.PIDFile}
		if name == "" {
			name = filepath.Base(cfg.Process.PIDFile)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	running, err := lister.Running(ctx, name)
	switch {
	case errors.Is(err, proc.ErrCheckerUnavailable):
		// Already reported by the tool check.
	case err != nil:
		warn("Process check failed: %v", err)
	case running:
		ok("'%s' is running (a run now would not transfer)", name)
	default:
		ok("'%s' is not running (a run now would transfer)", name)
	}
}

func doctorSummary(w io.Writer, criticalIssues, warningIssues int) error {
	fmt.Fprintln(w)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(w, "✓ All checks passed!")
		return nil
	}
	if criticalIssues > 0 {
		fmt.Fprintf(w, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintf(w, "Found %d warning(s). Runs will work but may skip or degrade.\n", warningIssues)
	return nil
}
