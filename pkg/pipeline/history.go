package pipeline

import (
	"log/slog"

	"github.com/dtnitsch/manga-downloadr/pkg/db"
)

// HistoryRecorder writes stage results to the run history database.
// History is informational; write errors are logged and otherwise ignored.
type HistoryRecorder struct {
	DB     *db.DB
	RunID  string
	Logger *slog.Logger
}

func NewHistoryRecorder(d *db.DB, runID string, logger *slog.Logger) *HistoryRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryRecorder{DB: d, RunID: runID, Logger: logger}
}

func (h *HistoryRecorder) Record(res StageResult) {
	if h == nil || h.DB == nil {
		return
	}
	report := db.StageReport{
		Stage:     string(res.Stage),
		Total:     res.Report.Total,
		Succeeded: res.Report.Succeeded,
		Failed:    res.Report.Failed,
		Skipped:   res.Cached,
		Marked:    res.Marked,
	}
	if err := h.DB.RecordStage(h.RunID, report); err != nil {
		h.Logger.Warn("Failed to record stage history", "stage", res.Stage, "error", err)
	}

	if len(res.Report.Failures) == 0 {
		return
	}
	failures := make([]db.ItemFailure, 0, len(res.Report.Failures))
	for _, f := range res.Report.Failures {
		failures = append(failures, db.ItemFailure{
			Stage:        string(res.Stage),
			ItemKey:      f.Key,
			ErrorType:    Classify(f.Err),
			ErrorMessage: f.Err.Error(),
		})
	}
	if err := h.DB.RecordFailures(h.RunID, failures); err != nil {
		h.Logger.Warn("Failed to record item failures", "stage", res.Stage, "error", err)
	}
}
