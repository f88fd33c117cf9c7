package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/shipwatch/internal/store"
)

func TestRenderRunTable_Empty(t *testing.T) {
	if got := RenderRunTable(nil); got != "No runs recorded.\n" {
		t.Errorf("RenderRunTable(nil) = %q", got)
	}
}

func TestRenderRunTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []*store.Run{
		{
			ID:        "a",
			StartedAt: base,
			Process:   "xxxx",
			Outcome:   "skipped_running",
		},
		{
			ID:           "b",
			StartedAt:    base.Add(time.Hour),
			Process:      "xxxx",
			Outcome:      "transferred",
			RemoteName:   "backup_20250301_130000.zip",
			ArchiveBytes: 4096,
		},
		{
			ID:              "c",
			StartedAt:       base.Add(2 * time.Hour),
			Process:         "xxxx",
			Outcome:         "transfer_failed",
			Error:           "scp exited with status 1: Permission denied (publickey)",
			CheckerDegraded: true,
		},
	}

	out := RenderRunTable(runs)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, rule and 3 rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Outcome") || !strings.Contains(lines[0], "Remote Name") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "transfer_failed") {
		t.Errorf("newest run should be first, got %q", lines[2])
	}
	if !strings.Contains(lines[2], "xxxx?") {
		t.Errorf("degraded checker should be marked, got %q", lines[2])
	}
	if !strings.Contains(lines[2], "...") {
		t.Errorf("long error should be truncated, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "backup_20250301_130000.zip") || !strings.Contains(lines[3], "4.1 kB") {
		t.Errorf("transferred row missing name or size: %q", lines[3])
	}
	if strings.Contains(out, "\033[") {
		t.Error("NO_COLOR output must not contain ANSI codes")
	}
}

func TestRenderOutcomeSummary(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if got := RenderOutcomeSummary(nil); got != "" {
		t.Errorf("empty summary = %q, want empty", got)
	}

	got := RenderOutcomeSummary(map[string]int{
		"transferred":     4,
		"skipped_running": 10,
		"archive_failed":  4,
	})
	want := "skipped_running: 10 · archive_failed: 4 · transferred: 4\n"
	if got != want {
		t.Errorf("RenderOutcomeSummary() = %q, want %q", got, want)
	}
}

func TestRenderLastRun(t *testing.T) {
	if got := RenderLastRun(nil); !strings.Contains(got, "never") {
		t.Errorf("RenderLastRun(nil) = %q", got)
	}

	now := time.Now()
	got := RenderLastRun(&store.Run{
		StartedAt:  now.Add(-2 * time.Hour),
		FinishedAt: now.Add(-2*time.Hour + 1500*time.Millisecond),
		Outcome:    "transferred",
		Hostname:   "host-a",
	})
	for _, want := range []string{"transferred", "2 hours ago", "1.5s", "host-a"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderLastRun() = %q, missing %q", got, want)
		}
	}
}

func TestOutcomeColor(t *testing.T) {
	tests := map[string]string{
		"transferred":       colorGreen,
		"archive_failed":    colorRed,
		"transfer_failed":   colorRed,
		"check_unavailable": colorRed,
		"config_invalid":    colorRed,
		"skipped_no_file":   colorYellow,
		"skipped_running":   colorGray,
	}
	for outcome, want := range tests {
		if got := outcomeColor(outcome); got != want {
			t.Errorf("outcomeColor(%q) = %q, want %q", outcome, got, want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-1 * time.Minute), "1 minute ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-1 * time.Hour), "1 hour ago"},
		{now.Add(-30 * time.Hour), "1 day ago"},
		{now.Add(-3 * 24 * time.Hour), "3 days ago"},
		{now.Add(-8 * 24 * time.Hour), "1 week ago"},
		{now.Add(-21 * 24 * time.Hour), "3 weeks ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.t); got != tt.want {
			t.Errorf("formatRelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s      string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.s, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		-5:      "0 B",
		512:     "512 B",
		4096:    "4.1 kB",
		2000000: "2.0 MB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestConsole_Banner(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, false)

	c.Banner(time.Date(2025, 3, 1, 9, 5, 7, 0, time.Local), "host-a")
	c.Printf("Checking status for program: '%s'...", "xxxx")
	c.Footer()

	want := strings.Join([]string{
		"==========================================",
		"Date/Time: 2025-03-01 09:05:07",
		"Hostname: host-a",
		"------------------------------------------",
		"Checking status for program: 'xxxx'...",
		"==========================================",
		"Done.",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("console output:\n%s\nwant:\n%s", buf.String(), want)
	}
	if c.Silent() {
		t.Error("console should not be silent")
	}
}

func TestConsole_SilentWritesNothing(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, true)
	if !c.Silent() {
		t.Fatal("console should be silent")
	}

	// Everything goes to the discard writer, including spinners.
	c.Banner(time.Now(), "host")
	c.Println("line")
	sp := c.Spinner("Encrypting")
	sp.Start()
	sp.StopWithMessage("done")
	c.Footer()

	if c.Writer() == nil {
		t.Error("Writer() must never be nil")
	}
}

func TestConsole_NilWriterIsSilent(t *testing.T) {
	c := NewConsole(nil, false)
	if !c.Silent() {
		t.Error("nil writer should yield a silent console")
	}
	c.Println("ignored")
}
