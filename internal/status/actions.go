package status

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/manga-downloadr/internal/common"
	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/checkpoint"
	"github.com/dtnitsch/manga-downloadr/pkg/db"
)

// JobStatus is what the status command prints.
type JobStatus struct {
	Job        string     `yaml:"job"`
	Title      string     `yaml:"title,omitempty"`
	RootURL    string     `yaml:"root_url,omitempty"`
	Checkpoint string     `yaml:"checkpoint"`
	Completed  []string   `yaml:"completed_stages"`
	Pending    []string   `yaml:"pending_stages"`
	Chapters   int        `yaml:"chapters"`
	Pages      int        `yaml:"pages"`
	Images     int        `yaml:"images"`
	LastRun    *RunStatus `yaml:"last_run,omitempty"`
}

type RunStatus struct {
	ID       string        `yaml:"id"`
	Status   string        `yaml:"status"`
	Started  string        `yaml:"started"`
	Finished string        `yaml:"finished,omitempty"`
	Resumed  bool          `yaml:"resumed"`
	Error    string        `yaml:"error,omitempty"`
	Stages   []StageStatus `yaml:"stages,omitempty"`
	Failures []Failure     `yaml:"failures,omitempty"`
}

type StageStatus struct {
	Stage     string `yaml:"stage"`
	Total     int    `yaml:"total"`
	Succeeded int    `yaml:"succeeded"`
	Failed    int    `yaml:"failed"`
	Skipped   int    `yaml:"skipped,omitempty"`
	Completed bool   `yaml:"completed"`
}

type Failure struct {
	Stage string `yaml:"stage"`
	Item  string `yaml:"item"`
	Type  string `yaml:"type"`
	Error string `yaml:"error"`
}

// StatusAction prints the checkpoint and last run of a job as yaml.
func StatusAction(c *cli.Context) error {
	name, err := common.JobName(c.String("name"))
	if err != nil {
		return err
	}
	cfg := models.DefaultConfig()
	if c.IsSet("directory") {
		cfg.OutputRoot = c.String("directory")
	}

	st, err := Collect(cfg, name)
	if err != nil {
		return err
	}
	return Render(os.Stdout, st)
}

// Collect reads the checkpoint of name and the latest run from the history
// database. A missing checkpoint is reported as a job with no progress.
func Collect(cfg models.Config, name string) (*JobStatus, error) {
	path := checkpoint.PathFor(cfg.CheckpointDir, name)
	st := &JobStatus{Job: name, Checkpoint: path}

	job, err := checkpoint.Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		job = cfg.NewJob("", name)
		st.Checkpoint = path + " (none)"
	case err != nil:
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	st.Title = job.Title
	st.RootURL = job.RootURL
	st.Chapters = len(job.Chapters)
	st.Pages = job.PageCount
	st.Images = job.ImageCount()
	st.Completed = []string{}
	st.Pending = []string{}
	for _, s := range models.Stages {
		if job.State.Has(s) {
			st.Completed = append(st.Completed, string(s))
		} else {
			st.Pending = append(st.Pending, string(s))
		}
	}

	dbPath := filepath.Join(job.OutputRoot, db.DefaultDBName)
	if _, err := os.Stat(dbPath); err != nil {
		return st, nil
	}
	history, err := db.Open(job.OutputRoot)
	if err != nil {
		return nil, err
	}
	defer history.Close()

	run, err := history.LatestRun(name)
	if err != nil || run == nil {
		return st, err
	}
	st.LastRun, err = runStatus(history, run)
	return st, err
}

func runStatus(history *db.DB, run *db.Run) (*RunStatus, error) {
	rs := &RunStatus{
		ID:      run.RunID,
		Status:  run.Status,
		Started: fmt.Sprintf("%s (%s)", run.StartedAt.Format(time.RFC3339), humanize.Time(run.StartedAt)),
		Resumed: run.Resumed,
	}
	if run.FinishedAt.Valid {
		rs.Finished = run.FinishedAt.Time.Format(time.RFC3339)
	}
	if run.ErrorMessage.Valid {
		rs.Error = run.ErrorMessage.String
	}

	reports, err := history.StageReports(run.RunID)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		rs.Stages = append(rs.Stages, StageStatus{
			Stage:     r.Stage,
			Total:     r.Total,
			Succeeded: r.Succeeded,
			Failed:    r.Failed,
			Skipped:   r.Skipped,
			Completed: r.Marked,
		})
	}

	failures, err := history.Failures(run.RunID)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		rs.Failures = append(rs.Failures, Failure{Stage: f.Stage, Item: f.ItemKey, Type: f.ErrorType, Error: f.ErrorMessage})
	}
	return rs, nil
}

func Render(w io.Writer, st *JobStatus) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return enc.Close()
}
