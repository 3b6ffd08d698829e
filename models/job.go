package models

import "path/filepath"

// PageSize is a width × height pair.
type PageSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ChapterRef is a source-relative chapter locator and its position in the listing.
type ChapterRef struct {
	Locator string `yaml:"locator"`
	Ordinal int    `yaml:"ordinal"`
}

// PageRef is a page locator that belongs to exactly one chapter.
type PageRef struct {
	Chapter string `yaml:"chapter"`
	Locator string `yaml:"locator"`
}

// ImageRecord maps one source image to its future local file.
type ImageRecord struct {
	Chapter   string `yaml:"chapter"`
	Folder    string `yaml:"folder"`
	File      string `yaml:"file"`
	SourceURL string `yaml:"url"`
}

// Path returns the materialized location of the record under jobDir.
func (r ImageRecord) Path(jobDir string) string {
	return filepath.Join(jobDir, r.Folder, r.File)
}

// Job is the whole state of one crawl/compile run. It is what the checkpoint stores.
type Job struct {
	RootURL     string   `yaml:"root_url"`
	Name        string   `yaml:"name"`
	OutputRoot  string   `yaml:"output_root"`
	Concurrency int      `yaml:"concurrency"`
	PageSize    PageSize `yaml:"page_size"`
	VolumeSize  int      `yaml:"volume_size"`
	Title       string   `yaml:"title"`

	Chapters  []ChapterRef             `yaml:"chapters"`
	Pages     map[string][]PageRef     `yaml:"pages"`
	Images    map[string][]ImageRecord `yaml:"images"`
	PageCount int                      `yaml:"page_count"`

	State ProcessingState `yaml:"processing_state"`
}

// Dir is the folder holding the job's assets and volumes.
func (j *Job) Dir() string {
	return filepath.Join(j.OutputRoot, j.Name)
}

// ImageCount returns the number of discovered image records.
func (j *Job) ImageCount() int {
	n := 0
	for _, records := range j.Images {
		n += len(records)
	}
	return n
}

// Volume is one batch of ordered assets compiled into a single document.
// It is recomputed on every compilation and never persisted.
type Volume struct {
	Ordinal int
	Assets  []string
	Path    string
}
