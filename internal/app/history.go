package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/shipwatch/internal/output"
	"github.com/blackwell-systems/shipwatch/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the journal",
	Long: `Display recent runs recorded in the run journal, newest first.

Each run shows its outcome, the remote name it was shipped under, the archive
size and any error. A "?" after the process name marks runs where the process
checker was unavailable and the process was assumed not running.`,
	Example: `  # Last 20 runs
  shipwatch history

  # Everything
  shipwatch history --limit 0`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show (0 for all)")
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0, got %d", historyLimit)
	}

	// Config is optional here; only the journal location is needed.
	cfg, _, _ := loadConfig()
	journalPath, err := getJournalPath(cfg)
	if err != nil {
		return fmt.Errorf("failed to get journal path: %w", err)
	}

	db, err := store.Open(journalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(historyLimit)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		return fmt.Errorf("failed to list runs: %w", err)
	}
	counts, err := db.CountByOutcome()
	if err != nil {
		return fmt.Errorf("failed to count runs: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Journal:      %s\n", journalPath)
	var latest *store.Run
	if len(runs) > 0 {
		latest = runs[0]
	}
	fmt.Fprint(w, output.RenderLastRun(latest))
	if summary := output.RenderOutcomeSummary(counts); summary != "" {
		fmt.Fprint(w, "Outcomes:     "+summary)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, output.RenderRunTable(runs))
	return nil
}
