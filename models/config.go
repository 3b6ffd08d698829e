// Package models defines the job record and the configuration it is built from.
package models

import (
	"os"
	"path/filepath"
)

const (
	DefaultOutputRoot  = "/vagrant/tmp/mangareader/"
	DefaultConcurrency = 100
	DefaultVolumeSize  = 250
	DefaultQuality     = 50
)

// DefaultPageSize is the target page of every compiled volume, in points.
var DefaultPageSize = PageSize{Width: 600, Height: 800}

// Selectors locate the chapter listing, page menu and page image in the source markup.
type Selectors struct {
	ChapterLinks string `yaml:"chapter_links"`
	Title        string `yaml:"title"`
	PageOptions  string `yaml:"page_options"`
	Image        string `yaml:"image"`
}

// DefaultSelectors matches the markup of mangareader-style sites.
func DefaultSelectors() Selectors {
	return Selectors{
		ChapterLinks: "#listing a",
		Title:        "#mangaproperties h1",
		PageOptions:  "#selectpage #pageMenu option",
		Image:        "#img",
	}
}

// Config holds runtime configuration for a download run.
// Only OutputRoot comes from a CLI flag; everything else is a constructor default.
type Config struct {
	OutputRoot    string
	CheckpointDir string
	Concurrency   int
	PageSize      PageSize
	VolumeSize    int
	Quality       int

	// MinSuccessRatio is the share of items a stage must complete before its
	// marker is recorded. Zero keeps the "attempted is enough" behavior.
	MinSuccessRatio float64

	Selectors Selectors
	UserAgent string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		OutputRoot:    DefaultOutputRoot,
		CheckpointDir: os.TempDir(),
		Concurrency:   DefaultConcurrency,
		PageSize:      DefaultPageSize,
		VolumeSize:    DefaultVolumeSize,
		Quality:       DefaultQuality,
		Selectors:     DefaultSelectors(),
		UserAgent:     "manga-downloadr/1.0",
	}
}

// NewJob builds a fresh job record for rootURL stored under name.
func (c Config) NewJob(rootURL, name string) *Job {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	volumeSize := c.VolumeSize
	if volumeSize <= 0 {
		volumeSize = DefaultVolumeSize
	}
	pageSize := c.PageSize
	if pageSize.Width <= 0 || pageSize.Height <= 0 {
		pageSize = DefaultPageSize
	}
	root := c.OutputRoot
	if root == "" {
		root = DefaultOutputRoot
	}

	return &Job{
		RootURL:     rootURL,
		Name:        name,
		OutputRoot:  filepath.Clean(root),
		Concurrency: concurrency,
		PageSize:    pageSize,
		VolumeSize:  volumeSize,
		Pages:       map[string][]PageRef{},
		Images:      map[string][]ImageRecord{},
	}
}
