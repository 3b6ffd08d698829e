package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- Runs: one row per process invocation against a job
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    job_name TEXT NOT NULL,
    root_url TEXT NOT NULL,
    resumed BOOLEAN NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status TEXT NOT NULL DEFAULT 'running',  -- running, success, failed
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_name, started_at DESC);

-- Stage reports: fan-out batch totals for every stage a run executed
CREATE TABLE IF NOT EXISTS stage_reports (
    report_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    total INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    marked BOOLEAN NOT NULL DEFAULT 0,
    completed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
    UNIQUE(run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_stage_reports_run ON stage_reports(run_id);

-- Item failures: isolated per-item errors, one row per dropped item
CREATE TABLE IF NOT EXISTS item_failures (
    failure_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    item_key TEXT NOT NULL,
    error_type TEXT NOT NULL,  -- transport_error, parse_error, io_error, codec_error
    error_message TEXT,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_item_failures_run ON item_failures(run_id, stage);
`
