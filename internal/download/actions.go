package download

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/manga-downloadr/internal/common"
	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/checkpoint"
	"github.com/dtnitsch/manga-downloadr/pkg/db"
	"github.com/dtnitsch/manga-downloadr/pkg/pipeline"
)

func usage() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, `  manga-downloadr --url "http://www.mangareader.net/naruto" --name naruto`)
	fmt.Fprintln(os.Stderr, `  manga-downloadr -u "http://www.mangareader.net/naruto" -n naruto -d /tmp/manga`)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Need help? Run: manga-downloadr --help")
}

// DownloadAction runs (or resumes) the download pipeline for one job.
func DownloadAction(c *cli.Context) error {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	startTime := time.Now()

	name, err := common.JobName(c.String("name"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(1)
	}
	rootURL, err := common.SanitizeAndValidateURL(c.String("url"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(1)
	}

	cfg := models.DefaultConfig()
	if c.IsSet("directory") {
		cfg.OutputRoot = c.String("directory")
	}

	store, err := checkpoint.Open(cfg.CheckpointDir, name)
	if errors.Is(err, checkpoint.ErrLocked) {
		return fmt.Errorf("job %q is already being processed: %w", name, err)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to release checkpoint lock", "error", err)
		}
	}()

	job, resumed, err := store.LoadOrCreate(cfg, rootURL)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", store.Path(), err)
	}
	if resumed {
		logger.Info("Resuming job from checkpoint", "job", job.Name, "checkpoint", store.Path(), "completed", job.State)
		if job.RootURL != rootURL {
			logger.Warn("Checkpoint root URL differs from --url, continuing with the stored job",
				"stored", job.RootURL, "requested", rootURL)
		}
	} else {
		logger.Info("Starting new job", "job", job.Name, "url", job.RootURL, "output", job.Dir())
	}

	opts := []pipeline.Option{
		pipeline.WithCheckpoint(store),
		pipeline.WithLogger(logger),
	}

	// Run history is best effort; a broken database never blocks a download.
	var history *db.DB
	var runID string
	if history, err = db.Open(job.OutputRoot); err != nil {
		logger.Warn("Run history unavailable", "error", err)
		history = nil
	} else {
		defer history.Close()
		if runID, err = history.StartRun(job.Name, job.RootURL, resumed); err != nil {
			logger.Warn("Failed to record run start", "error", err)
		} else {
			opts = append(opts, pipeline.WithRecorder(pipeline.NewHistoryRecorder(history, runID, logger)))
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(job, cfg, opts...)
	results, runErr := p.Run(ctx)

	if history != nil && runID != "" {
		if err := history.FinishRun(runID, runErr); err != nil {
			logger.Warn("Failed to record run result", "error", err)
		}
	}

	executed := 0
	for _, r := range results {
		if !r.Skipped {
			executed++
		}
	}
	if runErr != nil {
		logger.Error("Job stopped", "job", job.Name, "error", runErr, "checkpoint", store.Path())
		return runErr
	}
	logger.Info("Job complete",
		"job", job.Name,
		"stages_run", executed,
		"images", job.ImageCount(),
		"output", job.Dir(),
		"duration", time.Since(startTime).Round(time.Millisecond).String())
	return nil
}
