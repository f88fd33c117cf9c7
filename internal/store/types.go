package store

import "time"

// Run is one journaled pipeline execution.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Hostname        string
	Process         string
	Outcome         string
	ErrorKind       string // empty when the run had no error
	Error           string
	RemoteName      string // set only when a transfer was attempted
	ArchiveBytes    int64
	Checksum        string
	CheckerDegraded bool
}

// Duration is how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
