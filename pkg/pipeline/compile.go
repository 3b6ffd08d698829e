package pipeline

import (
	"context"
	"errors"
	"io/fs"

	"github.com/dtnitsch/manga-downloadr/pkg/fanout"
	"github.com/dtnitsch/manga-downloadr/pkg/manifest"
	"github.com/dtnitsch/manga-downloadr/pkg/volume"
)

// compile batches every asset under the job directory into volumes.
func (p *Pipeline) compile(ctx context.Context) (StageResult, error) {
	dir := p.Job.Dir()
	assets, err := volume.CollectAssets(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return StageResult{}, tag(KindIO, err)
	}

	title := p.Job.Title
	if title == "" {
		title = p.Job.Name
	}
	volumes := volume.Plan(assets, p.Job.VolumeSize, dir, title)
	if len(volumes) == 0 {
		p.Logger.Warn("No assets to compile", "dir", dir)
	}

	compiler := &volume.Compiler{
		Writer:   p.Writer,
		Dims:     p.Codec,
		PageSize: p.Job.PageSize,
		Logger:   p.Logger,
	}
	written, err := compiler.CompileAll(ctx, volumes)
	res := StageResult{
		Volumes: written,
		Report: fanout.Report{
			Total:     len(volumes),
			Succeeded: written,
			Failed:    len(volumes) - written,
		},
	}
	if err != nil {
		return res, err
	}

	path, err := manifest.Write(p.Job, volumes, p.Storage)
	if err != nil {
		p.Logger.Warn("Failed to write volume manifest", "error", err)
	} else {
		p.Logger.Info("Volume manifest written", "path", path)
	}
	return res, nil
}
