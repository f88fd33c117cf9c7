package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = `id, started_at, finished_at, hostname, process, outcome, error_kind, error,
	remote_name, archive_bytes, checksum, checker_degraded`

// InsertRun records a finished run.
func (s *Store) InsertRun(run *Run) error {
	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Hostname,
		run.Process,
		run.Outcome,
		run.ErrorKind,
		run.Error,
		run.RemoteName,
		run.ArchiveBytes,
		run.Checksum,
		run.CheckerDegraded,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, wrapQueryErr(err))
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", wrapQueryErr(err))
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run, or nil if the journal is empty.
func (s *Store) LatestRun() (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", wrapQueryErr(err))
	}
	return run, nil
}

// CountByOutcome returns how many runs ended in each outcome.
func (s *Store) CountByOutcome() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", wrapQueryErr(err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt string
	var hostname, process, errorKind, errText, remoteName, checksum sql.NullString
	var archiveBytes sql.NullInt64
	var degraded sql.NullBool

	err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&hostname,
		&process,
		&run.Outcome,
		&errorKind,
		&errText,
		&remoteName,
		&archiveBytes,
		&checksum,
		&degraded,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", wrapQueryErr(err))
	}

	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", run.ID, err)
	}
	run.FinishedAt, err = time.Parse(timeLayout, finishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for %s: %w", run.ID, err)
	}

	run.Hostname = hostname.String
	run.Process = process.String
	run.ErrorKind = errorKind.String
	run.Error = errText.String
	run.RemoteName = remoteName.String
	run.ArchiveBytes = archiveBytes.Int64
	run.Checksum = checksum.String
	run.CheckerDegraded = degraded.Bool
	return &run, nil
}
