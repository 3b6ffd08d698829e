package pipeline

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/codec"
	"github.com/dtnitsch/manga-downloadr/pkg/fanout"
	"github.com/dtnitsch/manga-downloadr/pkg/storage"
)

// materialize downloads every discovered image that is not already on disk
// and normalizes it to the job's page size.
func (p *Pipeline) materialize(ctx context.Context) (StageResult, error) {
	var cached, fetched atomic.Int64
	chapters := p.imageChapters()

	outcomes, outer := fanout.Map(ctx, chapters, p.Job.Concurrency, chapterKey,
		func(ctx context.Context, ch models.ChapterRef) (fanout.Report, error) {
			return fanout.ForEach(ctx, p.Job.Images[ch.Locator], p.Job.Concurrency, imageKey,
				func(ctx context.Context, rec models.ImageRecord) error {
					hit, n, err := p.download(ctx, rec)
					if err != nil {
						return err
					}
					if hit {
						cached.Add(1)
						p.Logger.Debug("Image already on disk", "folder", rec.Folder, "file", rec.File)
						return nil
					}
					fetched.Add(n)
					p.Logger.Debug("Image materialized", "folder", rec.Folder, "file", rec.File, "size", humanize.Bytes(uint64(n)))
					return nil
				}, p.batch("image download")), nil
		}, p.batch("image download"))

	var report fanout.Report
	for _, f := range outer.Failures {
		report.Merge(fanout.Report{Total: 1, Failed: 1, Failures: []fanout.Failure{f}})
	}
	for _, o := range outcomes {
		if o.Err == nil {
			report.Merge(o.Value)
		}
	}

	p.Logger.Info("Images materialized",
		"downloaded", report.Succeeded-int(cached.Load()),
		"cached", cached.Load(),
		"failed", report.Failed,
		"bytes", humanize.Bytes(uint64(fetched.Load())))
	return StageResult{Report: report, Cached: int(cached.Load())}, nil
}

// download materializes one record. It reports whether the file was already
// present and how many bytes were fetched.
func (p *Pipeline) download(ctx context.Context, rec models.ImageRecord) (bool, int64, error) {
	dest := rec.Path(p.Job.Dir())
	exists, err := p.Storage.Exists(dest)
	if err != nil {
		return false, 0, tag(KindIO, err)
	}
	if exists {
		return true, 0, nil
	}

	data, err := fanout.Call(ctx, p.Limiter, func() ([]byte, error) {
		return p.Fetcher.GetBytes(ctx, rec.SourceURL)
	})
	if err != nil {
		return false, 0, tag(KindTransport, err)
	}

	part, err := storage.CreatePart(dest)
	if err != nil {
		return false, 0, tag(KindIO, err)
	}
	partPath := part.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(partPath)
		}
	}()

	if _, err := part.Write(data); err != nil {
		_ = part.Close()
		return false, 0, tag(KindIO, err)
	}
	if err := part.Close(); err != nil {
		return false, 0, tag(KindIO, err)
	}

	box := codec.Size{Width: p.Job.PageSize.Width, Height: p.Job.PageSize.Height}
	err = p.Limiter.Do(ctx, func() error {
		return p.Codec.Normalize(partPath, box, p.Quality)
	})
	if err != nil {
		return false, 0, tag(KindCodec, err)
	}

	if err := storage.Commit(partPath, dest); err != nil {
		return false, 0, tag(KindIO, err)
	}
	committed = true
	return false, int64(len(data)), nil
}
