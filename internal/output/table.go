// Package output provides terminal output utilities for shipwatch.
//
// This package includes:
//   - The run Console (banner, step lines, silent mode)
//   - Table rendering for the run journal
//   - A spinner for native steps that print nothing themselves
//
// Tables use ANSI color only when stdout is a TTY and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/shipwatch/internal/store"
)

// ANSI color codes for outcome display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// outcomeColor picks a color by outcome name.
func outcomeColor(outcome string) string {
	switch {
	case outcome == "transferred":
		return colorGreen
	case strings.HasSuffix(outcome, "_failed"), strings.HasSuffix(outcome, "_unavailable"), outcome == "config_invalid":
		return colorRed
	case outcome == "skipped_no_file":
		return colorYellow
	default:
		return colorGray
	}
}

// RenderRunTable renders journaled runs, newest first.
func RenderRunTable(runs []*store.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	sorted := make([]*store.Run, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-19s %-17s %-16s %-9s %-32s %s\n",
		"Started", "Outcome", "Process", "Size", "Remote Name", "Error"))
	sb.WriteString(strings.Repeat("─", 110))
	sb.WriteString("\n")

	for _, run := range sorted {
		size := "-"
		if run.ArchiveBytes > 0 {
			size = FormatSize(run.ArchiveBytes)
		}
		remote := run.RemoteName
		if remote == "" {
			remote = "-"
		}
		outcome := fmt.Sprintf("%-17s", truncate(run.Outcome, 17))
		process := run.Process
		if run.CheckerDegraded {
			process += "?"
		}

		sb.WriteString(fmt.Sprintf("%-19s %s %-16s %-9s %-32s %s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			colorize(outcomeColor(run.Outcome), outcome),
			truncate(process, 16),
			size,
			truncate(remote, 32),
			truncate(run.Error, 40)))
	}

	return sb.String()
}

// RenderOutcomeSummary renders "transferred: 4 · skipped_running: 10" sorted by count.
func RenderOutcomeSummary(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}

	type pair struct {
		outcome string
		n       int
	}
	pairs := make([]pair, 0, len(counts))
	for outcome, n := range counts {
		pairs = append(pairs, pair{outcome, n})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].n != pairs[j].n {
			return pairs[i].n > pairs[j].n
		}
		return pairs[i].outcome < pairs[j].outcome
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = colorize(outcomeColor(p.outcome), fmt.Sprintf("%s: %d", p.outcome, p.n))
	}
	return strings.Join(parts, " · ") + "\n"
}

// RenderLastRun renders a one-line description of the latest run.
func RenderLastRun(run *store.Run) string {
	if run == nil {
		return "Last run:     never\n"
	}
	line := fmt.Sprintf("Last run:     %s (%s, took %s)",
		run.Outcome, formatRelativeTime(run.StartedAt), run.Duration().Round(time.Millisecond))
	if run.Hostname != "" {
		line += " on " + run.Hostname
	}
	return line + "\n"
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
