package models

import "fmt"

// Stage names one pipeline phase. The values double as checkpoint markers.
type Stage string

const (
	StageChapters Stage = "chapterUrls"
	StagePages    Stage = "pageUrls"
	StageImages   Stage = "imageUrls"
	StageDownload Stage = "images"
	StageCompile  Stage = "ebooks"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageChapters, StagePages, StageImages, StageDownload, StageCompile}

// ParseStage validates a marker read from outside the program.
func ParseStage(s string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// ProcessingState is the insertion-ordered set of completed stage markers.
// Markers are only ever appended.
type ProcessingState []Stage

// Has reports whether stage has been marked.
func (s ProcessingState) Has(stage Stage) bool {
	for _, m := range s {
		if m == stage {
			return true
		}
	}
	return false
}

// Mark appends stage unless it is already present.
func (s *ProcessingState) Mark(stage Stage) {
	if s.Has(stage) {
		return
	}
	*s = append(*s, stage)
}

// UnmarshalYAML rejects markers outside the stage vocabulary.
func (s *Stage) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	stage, err := ParseStage(raw)
	if err != nil {
		return err
	}
	*s = stage
	return nil
}
