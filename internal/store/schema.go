package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    hostname TEXT,
    process TEXT,
    outcome TEXT NOT NULL,
    error_kind TEXT,
    error TEXT,
    remote_name TEXT,
    archive_bytes INTEGER,
    checksum TEXT,
    checker_degraded BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
`
