package manifest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/storage"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest written next to the compiled volumes.
const FileName = "volumes.yaml"

// VolumeManifest gives a lightweight overview of the compiled volumes
// without opening any PDF.
type VolumeManifest struct {
	GeneratedAt string          `yaml:"generated_at"`
	Title       string          `yaml:"title"`
	SourceURL   string          `yaml:"source_url"`
	TotalAssets int             `yaml:"total_assets"`
	Volumes     []VolumeSummary `yaml:"volumes"`
}

// VolumeSummary describes a single volume.
type VolumeSummary struct {
	Ordinal    int    `yaml:"ordinal"`
	File       string `yaml:"file"`
	Pages      int    `yaml:"pages"`
	FirstAsset string `yaml:"first_asset,omitempty"`
	LastAsset  string `yaml:"last_asset,omitempty"`
	SizeBytes  int64  `yaml:"size_bytes,omitempty"`
	Size       string `yaml:"size,omitempty"`
}

// Build summarises volumes relative to the job directory.
func Build(job *models.Job, volumes []models.Volume) VolumeManifest {
	m := VolumeManifest{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Title:       job.Title,
		SourceURL:   job.RootURL,
	}
	dir := job.Dir()
	for _, v := range volumes {
		s := VolumeSummary{
			Ordinal: v.Ordinal,
			File:    filepath.Base(v.Path),
			Pages:   len(v.Assets),
		}
		if len(v.Assets) > 0 {
			s.FirstAsset = rel(dir, v.Assets[0])
			s.LastAsset = rel(dir, v.Assets[len(v.Assets)-1])
		}
		m.TotalAssets += len(v.Assets)
		m.Volumes = append(m.Volumes, s)
	}
	return m
}

// Write saves the manifest for job and returns its path.
// Volumes missing on disk are listed without a size.
func Write(job *models.Job, volumes []models.Volume, s *storage.Storage) (string, error) {
	m := Build(job, volumes)
	for i, v := range volumes {
		stats, err := s.GetFileStats(v.Path)
		if err != nil {
			continue
		}
		m.Volumes[i].SizeBytes = stats.SizeBytes
		m.Volumes[i].Size = humanize.Bytes(uint64(stats.SizeBytes))
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("error marshalling manifest: %w", err)
	}
	path := filepath.Join(job.Dir(), FileName)
	if err := s.SaveFile(path, data); err != nil {
		return "", fmt.Errorf("error saving manifest: %w", err)
	}
	return path, nil
}

func rel(dir, path string) string {
	r, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}
