package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run status values.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// Run is one row of the runs table.
type Run struct {
	RunID        string
	JobName      string
	RootURL      string
	Resumed      bool
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Status       string
	ErrorMessage sql.NullString
}

// StageReport is the batch summary of one stage within a run.
type StageReport struct {
	Stage     string
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Marked    bool
}

// ItemFailure is one dropped item.
type ItemFailure struct {
	Stage        string
	ItemKey      string
	ErrorType    string
	ErrorMessage string
}

// StartRun inserts a new run and returns its id.
func (db *DB) StartRun(jobName, rootURL string, resumed bool) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (run_id, job_name, root_url, resumed, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, jobName, rootURL, resumed, time.Now().UTC(), RunRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// FinishRun closes a run with its final status. runErr may be nil.
func (db *DB) FinishRun(runID string, runErr error) error {
	status := RunSuccess
	var msg sql.NullString
	if runErr != nil {
		status = RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, error_message = ?
		WHERE run_id = ?
	`, time.Now().UTC(), status, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordStage upserts the report of one stage.
func (db *DB) RecordStage(runID string, r StageReport) error {
	_, err := db.Exec(`
		INSERT INTO stage_reports (run_id, stage, total, succeeded, failed, skipped, marked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			marked = excluded.marked,
			completed_at = CURRENT_TIMESTAMP
	`, runID, r.Stage, r.Total, r.Succeeded, r.Failed, r.Skipped, r.Marked)
	if err != nil {
		return fmt.Errorf("failed to record stage report: %w", err)
	}
	return nil
}

// RecordFailures stores item failures in a single transaction.
func (db *DB) RecordFailures(runID string, failures []ItemFailure) error {
	if len(failures) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO item_failures (run_id, stage, item_key, error_type, error_message)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare failure insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range failures {
		if _, err := stmt.Exec(runID, f.Stage, f.ItemKey, f.ErrorType, f.ErrorMessage); err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}
	return tx.Commit()
}

// LatestRun returns the most recent run of jobName, or nil when there is none.
func (db *DB) LatestRun(jobName string) (*Run, error) {
	var r Run
	err := db.QueryRow(`
		SELECT run_id, job_name, root_url, resumed, started_at, finished_at, status, error_message
		FROM runs WHERE job_name = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1
	`, jobName).Scan(&r.RunID, &r.JobName, &r.RootURL, &r.Resumed, &r.StartedAt, &r.FinishedAt, &r.Status, &r.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return &r, nil
}

// StageReports returns the reports of a run in the order they were recorded.
func (db *DB) StageReports(runID string) ([]StageReport, error) {
	rows, err := db.Query(`
		SELECT stage, total, succeeded, failed, skipped, marked
		FROM stage_reports WHERE run_id = ?
		ORDER BY report_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage reports: %w", err)
	}
	defer rows.Close()

	var reports []StageReport
	for rows.Next() {
		var r StageReport
		if err := rows.Scan(&r.Stage, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &r.Marked); err != nil {
			return nil, fmt.Errorf("failed to scan stage report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Failures returns every item failure of a run.
func (db *DB) Failures(runID string) ([]ItemFailure, error) {
	rows, err := db.Query(`
		SELECT stage, item_key, error_type, COALESCE(error_message, '')
		FROM item_failures WHERE run_id = ?
		ORDER BY failure_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []ItemFailure
	for rows.Next() {
		var f ItemFailure
		if err := rows.Scan(&f.Stage, &f.ItemKey, &f.ErrorType, &f.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
