package parser

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/dtnitsch/manga-downloadr/models"
)

// ErrMalformedLabel marks an image label that is not "Folder - File".
var ErrMalformedLabel = errors.New("malformed image label")

var labelPattern = regexp.MustCompile(`^(.*?)\s-\s(.*?)$`)

// Label is the folder/file pair encoded in an image's alt text.
type Label struct {
	Folder string
	File   string
}

// LabelError reports the label that failed to parse.
type LabelError struct {
	Label string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMalformedLabel, e.Label)
}

func (e *LabelError) Unwrap() error { return ErrMalformedLabel }

// ParseLabel splits "Naruto 1 - Page 3" into folder "Naruto 1" and file "Page 3".
func ParseLabel(alt string) (Label, error) {
	m := labelPattern.FindStringSubmatch(strings.TrimSpace(alt))
	if m == nil {
		return Label{}, &LabelError{Label: alt}
	}
	folder := safeName(m[1])
	file := safeName(m[2])
	if folder == "" || file == "" {
		return Label{}, &LabelError{Label: alt}
	}
	return Label{Folder: folder, File: file}, nil
}

// ImageRecordFor builds the record for one page image. The extension comes
// from the image URL path, never from the label.
func ImageRecordFor(chapter string, img Image) (models.ImageRecord, error) {
	label, err := ParseLabel(img.Alt)
	if err != nil {
		return models.ImageRecord{}, err
	}
	u, err := url.Parse(img.Src)
	if err != nil {
		return models.ImageRecord{}, fmt.Errorf("invalid image URL %q: %w", img.Src, err)
	}
	return models.ImageRecord{
		Chapter:   chapter,
		Folder:    label.Folder,
		File:      label.File + path.Ext(u.Path),
		SourceURL: img.Src,
	}, nil
}

// safeName keeps a label field inside its parent directory.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
