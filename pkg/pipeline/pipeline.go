// Package pipeline drives a job through its stages:
// chapterUrls → pageUrls → imageUrls → images → ebooks.
//
// A stage whose marker is already on the job is skipped. After a stage
// runs, its marker is appended (when the batch met the success threshold)
// and the whole job is persisted. Stages only read what the previous stage
// recorded on the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/codec"
	"github.com/dtnitsch/manga-downloadr/pkg/fanout"
	"github.com/dtnitsch/manga-downloadr/pkg/fetcher"
	"github.com/dtnitsch/manga-downloadr/pkg/parser"
	"github.com/dtnitsch/manga-downloadr/pkg/storage"
	"github.com/dtnitsch/manga-downloadr/pkg/volume"
)

// ErrBelowThreshold stops a run when a stage completed too few items.
var ErrBelowThreshold = errors.New("stage success ratio below threshold")

// DocumentFetcher is the network transport.
type DocumentFetcher interface {
	GetHtml(ctx context.Context, url string) (*goquery.Document, error)
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// ImageCodec reads dimensions and normalizes images in place.
type ImageCodec interface {
	volume.Dimensioner
	Normalize(path string, box codec.Size, quality int) error
}

// Checkpointer persists the job after every stage.
type Checkpointer interface {
	Persist(job *models.Job) error
}

// Recorder receives the result of every executed stage.
type Recorder interface {
	Record(result StageResult)
}

// StageResult describes one stage of a run.
type StageResult struct {
	Stage   models.Stage
	Skipped bool // marker already present, nothing ran
	Marked  bool // marker appended by this run
	Report  fanout.Report
	Cached  int // items satisfied by files already on disk
	Volumes int
	Err     error
}

type Pipeline struct {
	Job             *models.Job
	Fetcher         DocumentFetcher
	Parser          *parser.Parser
	Codec           ImageCodec
	Writer          volume.Writer
	Limiter         *fanout.Limiter
	Checkpoint      Checkpointer
	Recorder        Recorder
	Storage         *storage.Storage
	Logger          *slog.Logger
	Quality         int
	MinSuccessRatio float64
}

type Option func(*Pipeline)

func WithFetcher(f DocumentFetcher) Option { return func(p *Pipeline) { p.Fetcher = f } }
func WithCodec(c ImageCodec) Option { return func(p *Pipeline) { p.Codec = c } }
func WithWriter(w volume.Writer) Option { return func(p *Pipeline) { p.Writer = w } }
func WithCheckpoint(c Checkpointer) Option { return func(p *Pipeline) { p.Checkpoint = c } }
func WithRecorder(r Recorder) Option { return func(p *Pipeline) { p.Recorder = r } }
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.Logger = l } }
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.Fetcher = fetcher.NewFetcher(fetcher.WithClient(c)) }
}

// New wires a pipeline for job. Collaborators not given as options get the
// production implementations.
func New(job *models.Job, cfg models.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		Job:             job,
		Parser:          parser.New(cfg.Selectors),
		Limiter:         fanout.NewLimiter(job.Concurrency),
		Storage:         &storage.Storage{},
		Quality:         cfg.Quality,
		MinSuccessRatio: cfg.MinSuccessRatio,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.Fetcher == nil {
		p.Fetcher = fetcher.NewFetcher(fetcher.WithUserAgent(cfg.UserAgent))
	}
	if p.Codec == nil {
		p.Codec = codec.New()
	}
	if p.Writer == nil {
		p.Writer = volume.NewPDFWriter(p.Codec)
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

type stage struct {
	name models.Stage
	run  func(context.Context) (StageResult, error)
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{models.StageChapters, p.discoverChapters},
		{models.StagePages, p.discoverPages},
		{models.StageImages, p.discoverImages},
		{models.StageDownload, p.materialize},
		{models.StageCompile, p.compile},
	}
}

// Run executes every stage whose marker is missing, in order. It stops at the
// first stage that fails or misses the success threshold. A stage cut short by
// ctx is never marked, so it runs again on the next start.
func (p *Pipeline) Run(ctx context.Context) ([]StageResult, error) {
	var results []StageResult
	for _, s := range p.stages() {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("run interrupted before %s: %w", s.name, err)
		}
		if p.Job.State.Has(s.name) {
			p.Logger.Info("Stage already complete, skipping", "stage", s.name)
			results = append(results, StageResult{Stage: s.name, Skipped: true})
			continue
		}

		p.Logger.Info("Stage started", "stage", s.name, "job", p.Job.Name)
		res, err := s.run(ctx)
		res.Stage = s.name
		if ctxErr := ctx.Err(); err == nil && ctxErr != nil {
			err = fmt.Errorf("interrupted: %w", ctxErr)
		}
		if err == nil && !res.Report.Meets(p.MinSuccessRatio) {
			err = fmt.Errorf("%w: %d/%d items succeeded, need %.0f%%",
				ErrBelowThreshold, res.Report.Succeeded, res.Report.Total, p.MinSuccessRatio*100)
		}
		if err == nil {
			p.Job.State.Mark(s.name)
			res.Marked = true
		}
		res.Err = err
		p.persist()

		p.Logger.Info("Stage finished", "stage", s.name,
			"total", res.Report.Total, "succeeded", res.Report.Succeeded,
			"failed", res.Report.Failed, "cached", res.Cached, "marked", res.Marked)
		if p.Recorder != nil {
			p.Recorder.Record(res)
		}
		results = append(results, res)

		if err != nil {
			return results, fmt.Errorf("stage %s: %w", s.name, err)
		}
	}
	return results, nil
}

// persist saves the job. A failure is logged and the run continues.
func (p *Pipeline) persist() {
	if p.Checkpoint == nil {
		return
	}
	if err := p.Checkpoint.Persist(p.Job); err != nil {
		p.Logger.Error("Failed to persist checkpoint, progress of this run may be lost", "job", p.Job.Name, "error", err)
	}
}

func (p *Pipeline) batch(name string) fanout.Options {
	return fanout.Options{Logger: p.Logger, Name: name}
}

func chapterKey(c models.ChapterRef) string { return c.Locator }
func pageKey(pg models.PageRef) string { return pg.Locator }
func imageKey(r models.ImageRecord) string { return r.Folder + "/" + r.File }
