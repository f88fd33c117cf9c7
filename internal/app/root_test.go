package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/shipwatch/internal/pipeline"
	"github.com/blackwell-systems/shipwatch/internal/store"
)

// testEnv is a home directory, a fake tool PATH and a config pointing at both.
type testEnv struct {
	dir     string
	bin     string
	source  string
	archive string
	journal string
	scpLog  string
	config  string
}

// resetFlags restores the package-level flag variables after a test.
func resetFlags(t *testing.T) {
	t.Helper()
	oldConfig, oldSilent, oldExitZero, oldVerbose := configPath, silent, exitZero, verbose
	t.Cleanup(func() {
		configPath, silent, exitZero, verbose = oldConfig, oldSilent, oldExitZero, oldVerbose
	})
}

func writeTool(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake %s: %v", name, err)
	}
}

// newTestEnv installs fake pgrep/zip/scp: the process is not running, zip
// succeeds and scp exits with scpExit.
func newTestEnv(t *testing.T, scpExit int) *testEnv {
	t.Helper()
	resetFlags(t)

	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		bin:     filepath.Join(dir, "bin"),
		source:  filepath.Join(dir, "test.txt"),
		archive: filepath.Join(dir, "moveme.zip"),
		journal: filepath.Join(dir, "runs.db"),
		scpLog:  filepath.Join(dir, "scp.log"),
		config:  filepath.Join(dir, "config.yaml"),
	}
	if err := os.MkdirAll(env.bin, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.source, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	writeTool(t, env.bin, "pgrep", "exit 1")
	writeTool(t, env.bin, "zip", `printf 'PK-fake' > "$4"
echo "  adding: test.txt (deflated 0%)"`)
	writeTool(t, env.bin, "scp", fmt.Sprintf(`echo "$@" >> %q
if [ %d -ne 0 ]; then echo "Permission denied (publickey)." >&2; fi
exit %d`, env.scpLog, scpExit, scpExit))

	cfg := fmt.Sprintf(`process:
  name: xxxx
source: %s
archive:
  path: %s
remote:
  user: foo
  host: 172.168.1.100
  path: /home/me/rec/
  key_path: %s
journal: %s
`, env.source, env.archive, filepath.Join(dir, "id_ed25519"), env.journal)
	if err := os.WriteFile(env.config, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HOME", dir)
	t.Setenv("PATH", env.bin)
	t.Setenv("SHIPWATCH_PASSPHRASE", "STRONG_PASSWORD")
	configPath = env.config
	return env
}

func runCommand(t *testing.T, run func(*cobra.Command, []string) error) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := run(cmd, nil)
	return stdout.String(), stderr.String(), err
}

func journalRuns(t *testing.T, path string) []*store.Run {
	t.Helper()
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer db.Close()
	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	return runs
}

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "shipwatch" {
		t.Errorf("expected Use to be 'shipwatch', got '%s'", RootCmd.Use)
	}
	if RootCmd.Short == "" || RootCmd.Long == "" {
		t.Error("expected Short and Long descriptions to be set")
	}

	found := make(map[string]bool)
	for _, cmd := range RootCmd.Commands() {
		found[cmd.Use] = true
	}
	for _, expected := range []string{"doctor", "history", "init"} {
		if !found[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandFlags(t *testing.T) {
	flag := RootCmd.Flags().Lookup("silent")
	if flag == nil || flag.Shorthand != "s" {
		t.Fatal("expected --silent/-s flag")
	}
	for _, name := range []string{"exit-zero", "verbose"} {
		if RootCmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
	if RootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected persistent --config flag")
	}
}

func TestRunShip_Transferred(t *testing.T) {
	env := newTestEnv(t, 0)

	stdout, _, err := runCommand(t, runShip)
	if err != nil {
		t.Fatalf("runShip() error = %v", err)
	}

	for _, want := range []string{
		"Checking status for program: 'xxxx'...",
		"is NOT running",
		"adding: test.txt",
		"SUCCESS: Encrypted archive transferred successfully and renamed to backup_",
		"Done.",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if _, err := os.Stat(env.archive); !os.IsNotExist(err) {
		t.Error("local archive should be removed after transfer")
	}

	scpArgs, err := os.ReadFile(env.scpLog)
	if err != nil {
		t.Fatalf("scp was not invoked: %v", err)
	}
	if !strings.Contains(string(scpArgs), "-o BatchMode=yes") ||
		!strings.Contains(string(scpArgs), "foo@172.168.1.100:/home/me/rec/backup_") {
		t.Errorf("unexpected scp args: %s", scpArgs)
	}

	runs := journalRuns(t, env.journal)
	if len(runs) != 1 || runs[0].Outcome != "transferred" || runs[0].RemoteName == "" {
		t.Errorf("journal not updated: %+v", runs)
	}
}

func TestRunShip_TransferFailed(t *testing.T) {
	env := newTestEnv(t, 1)

	stdout, stderr, err := runCommand(t, runShip)

	if got := ExitCode(err); got != pipeline.ExitTransferFailed {
		t.Fatalf("exit code = %d, want %d (err %v)", got, pipeline.ExitTransferFailed, err)
	}
	if _, statErr := os.Stat(env.archive); statErr != nil {
		t.Error("local archive must be kept after a failed transfer")
	}
	if !strings.Contains(stdout, "The local archive was kept for manual inspection.") {
		t.Errorf("stdout:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Permission denied") {
		t.Errorf("scp stderr should pass through when not silent:\n%s", stderr)
	}

	runs := journalRuns(t, env.journal)
	if len(runs) != 1 || runs[0].Outcome != "transfer_failed" || runs[0].ErrorKind != "transfer_tool_failure" {
		t.Errorf("unexpected journal: %+v", runs)
	}
}

func TestRunShip_ExitZero(t *testing.T) {
	newTestEnv(t, 1)
	exitZero = true

	if _, _, err := runCommand(t, runShip); err != nil {
		t.Errorf("--exit-zero should report success, got %v", err)
	}
}

func TestRunShip_Silent(t *testing.T) {
	scenarios := map[string]func(t *testing.T, env *testEnv){
		"transferred":     func(t *testing.T, env *testEnv) {},
		"transfer failed": func(t *testing.T, env *testEnv) { writeTool(t, env.bin, "scp", "echo oops >&2; exit 1") },
		"running":         func(t *testing.T, env *testEnv) { writeTool(t, env.bin, "pgrep", "echo 4242; exit 0") },
		"no source":       func(t *testing.T, env *testEnv) { os.Remove(env.source) },
		"no pgrep":        func(t *testing.T, env *testEnv) { os.Remove(filepath.Join(env.bin, "pgrep")) },
		"bad config":      func(t *testing.T, env *testEnv) { t.Setenv("SHIPWATCH_PASSPHRASE", "") },
	}

	for name, setup := range scenarios {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, 0)
			setup(t, env)
			silent = true

			stdout, stderr, _ := runCommand(t, runShip)
			if stdout != "" || stderr != "" {
				t.Errorf("silent run wrote stdout=%q stderr=%q", stdout, stderr)
			}
		})
	}
}

func TestRunShip_ProcessRunning(t *testing.T) {
	env := newTestEnv(t, 0)
	writeTool(t, env.bin, "pgrep", "exit 0")

	stdout, _, err := runCommand(t, runShip)
	if err != nil {
		t.Fatalf("runShip() error = %v", err)
	}
	if !strings.Contains(stdout, "Status: 'xxxx' is running. No transfer initiated.") {
		t.Errorf("stdout:\n%s", stdout)
	}
	if _, err := os.Stat(env.scpLog); !os.IsNotExist(err) {
		t.Error("scp must not run when the process is running")
	}
}

func TestRunShip_SourceMissing(t *testing.T) {
	env := newTestEnv(t, 0)
	os.Remove(env.source)

	stdout, _, err := runCommand(t, runShip)
	if got := ExitCode(err); got != pipeline.ExitSkippedNoFile {
		t.Errorf("exit code = %d, want %d", got, pipeline.ExitSkippedNoFile)
	}
	if !strings.Contains(stdout, "not found. Transfer skipped.") {
		t.Errorf("stdout:\n%s", stdout)
	}
}

func TestRunShip_ConfigInvalid(t *testing.T) {
	newTestEnv(t, 0)
	t.Setenv("SHIPWATCH_PASSPHRASE", "")

	stdout, stderr, err := runCommand(t, runShip)
	if got := ExitCode(err); got != pipeline.ExitConfigInvalid {
		t.Fatalf("exit code = %d, want %d", got, pipeline.ExitConfigInvalid)
	}
	if !strings.Contains(stderr, "invalid configuration") || !strings.Contains(stderr, "passphrase not set") {
		t.Errorf("stderr:\n%s", stderr)
	}
	if !strings.Contains(stdout, "Date/Time:") || !strings.HasSuffix(stdout, "Done.\n") {
		t.Errorf("invalid configuration should still print the banner and footer:\n%s", stdout)
	}

	// exit-zero never hides a broken configuration.
	exitZero = true
	if _, _, err := runCommand(t, runShip); ExitCode(err) != pipeline.ExitConfigInvalid {
		t.Errorf("config errors must exit %d even with --exit-zero", pipeline.ExitConfigInvalid)
	}
}

func TestRunShip_MissingExplicitConfig(t *testing.T) {
	newTestEnv(t, 0)
	configPath = filepath.Join(t.TempDir(), "absent.yaml")

	if _, _, err := runCommand(t, runShip); ExitCode(err) != pipeline.ExitConfigInvalid {
		t.Errorf("missing --config file should be a config error, got %v", err)
	}
}

func TestRunShip_LogFile(t *testing.T) {
	env := newTestEnv(t, 0)
	logPath := filepath.Join(env.dir, "logs", "shipwatch.log")
	f, err := os.OpenFile(env.config, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(f, "log_file: %s\n", logPath)
	f.Close()
	silent = true

	if _, _, err := runCommand(t, runShip); err != nil {
		t.Fatalf("runShip() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"run complete"`) || !strings.Contains(string(data), `"outcome":"transferred"`) {
		t.Errorf("unexpected log file content:\n%s", data)
	}
}

func TestJournalEntry(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	plan := pipeline.Plan{Process: "xxxx", Hostname: "host-a"}

	t.Run("skipped keeps no remote name", func(t *testing.T) {
		res := &pipeline.Result{
			ID:         "r1",
			Outcome:    pipeline.SkippedNoFile,
			Err:        &pipeline.StepError{Kind: pipeline.FileNotFound, Step: pipeline.StepSource, Err: os.ErrNotExist},
			RemoteName: "",
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
		}
		run := journalEntry(plan, res)
		if run.Outcome != "skipped_no_file" || run.ErrorKind != "file_not_found" || run.Error == "" {
			t.Errorf("unexpected entry: %+v", run)
		}
		if run.Hostname != "host-a" || run.Process != "xxxx" {
			t.Errorf("plan fields not copied: %+v", run)
		}
	})

	t.Run("cleanup failure is recorded", func(t *testing.T) {
		res := &pipeline.Result{
			ID:         "r2",
			Outcome:    pipeline.Transferred,
			CleanupErr: &pipeline.StepError{Kind: pipeline.Unexpected, Step: pipeline.StepCleanup, Err: errors.New("busy")},
			RemoteName: "backup_20250301_120000.zip",
		}
		run := journalEntry(plan, res)
		if run.ErrorKind != "unexpected" || !strings.Contains(run.Error, "busy") {
			t.Errorf("cleanup error not recorded: %+v", run)
		}
		if run.RemoteName != "backup_20250301_120000.zip" {
			t.Errorf("RemoteName = %q", run.RemoteName)
		}
	})

	t.Run("degraded checker", func(t *testing.T) {
		res := &pipeline.Result{
			ID:              "r3",
			Outcome:         pipeline.Transferred,
			CheckerDegraded: true,
			CheckErr:        &pipeline.StepError{Kind: pipeline.CheckerUnavailable, Step: pipeline.StepCheck, Err: errors.New("pgrep missing")},
		}
		run := journalEntry(plan, res)
		if !run.CheckerDegraded || run.ErrorKind != "" || !strings.Contains(run.Error, "pgrep missing") {
			t.Errorf("unexpected entry: %+v", run)
		}
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("diagnostics failed"), 1},
		{&ExitError{Code: 6}, 6},
		{fmt.Errorf("wrapped: %w", &ExitError{Code: 78}), 78},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	resetFlags(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHIPWATCH_CONFIG", "")

	configPath = ""
	path, explicit, err := getConfigPath()
	if err != nil || explicit || path != filepath.Join(home, ".shipwatch", "config.yaml") {
		t.Errorf("default: got %q, %v, %v", path, explicit, err)
	}

	t.Setenv("SHIPWATCH_CONFIG", "~/other.yaml")
	path, explicit, _ = getConfigPath()
	if !explicit || path != filepath.Join(home, "other.yaml") {
		t.Errorf("env: got %q, %v", path, explicit)
	}

	configPath = "/etc/shipwatch.yaml"
	path, explicit, _ = getConfigPath()
	if !explicit || path != "/etc/shipwatch.yaml" {
		t.Errorf("flag: got %q, %v", path, explicit)
	}
}

func TestGetJournalPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := getJournalPath(nil)
	if err != nil {
		t.Fatalf("getJournalPath(nil) error = %v", err)
	}
	if path != filepath.Join(home, ".shipwatch", "runs.db") {
		t.Errorf("default journal = %q", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("shipwatch directory should be created: %v", err)
	}
}
