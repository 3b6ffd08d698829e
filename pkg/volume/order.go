// Package volume orders materialized assets and compiles them into fixed-size
// paginated volumes.
package volume

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/storage"
)

// NumericKey is the numeric value of the last whitespace-delimited token of
// name, with any file extension removed. Non-numeric tokens, NaN and
// infinities yield 0.
func NumericKey(name string) float64 {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	if ext := filepath.Ext(last); ext != "" {
		if _, err := strconv.ParseFloat(last, 64); err != nil {
			last = strings.TrimSuffix(last, ext)
		}
	}
	v, err := strconv.ParseFloat(last, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SortNumeric orders names by NumericKey, breaking ties lexically.
func SortNumeric(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ki, kj := NumericKey(names[i]), NumericKey(names[j])
		if ki != kj {
			return ki < kj
		}
		return names[i] < names[j]
	})
}

// CollectAssets lists every asset under jobDir in compile order: folders by
// numeric key, then files inside each folder by numeric key.
func CollectAssets(jobDir string) ([]string, error) {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read job directory: %w", err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() && !storage.IsPart(e.Name()) {
			folders = append(folders, e.Name())
		}
	}
	SortNumeric(folders)

	var assets []string
	for _, folder := range folders {
		files, err := os.ReadDir(filepath.Join(jobDir, folder))
		if err != nil {
			return nil, fmt.Errorf("failed to read folder %s: %w", folder, err)
		}
		var names []string
		for _, f := range files {
			if f.Type().IsRegular() && !storage.IsPart(f.Name()) {
				names = append(names, f.Name())
			}
		}
		SortNumeric(names)
		for _, name := range names {
			assets = append(assets, filepath.Join(jobDir, folder, name))
		}
	}
	return assets, nil
}

// Plan splits assets into consecutive volumes of at most size entries.
// Volume N is written to "<title> <N>.pdf" in dir.
func Plan(assets []string, size int, dir, title string) []models.Volume {
	if size <= 0 {
		size = models.DefaultVolumeSize
	}
	title = SafeTitle(title)

	var volumes []models.Volume
	for start := 0; start < len(assets); start += size {
		end := min(start+size, len(assets))
		n := len(volumes) + 1
		volumes = append(volumes, models.Volume{
			Ordinal: n,
			Assets:  assets[start:end],
			Path:    filepath.Join(dir, fmt.Sprintf("%s %d.pdf", title, n)),
		})
	}
	return volumes
}

// SafeTitle makes a discovered title usable as a file name.
func SafeTitle(title string) string {
	title = strings.TrimSpace(strings.NewReplacer("/", "-", "\\", "-", "\x00", "").Replace(title))
	title = strings.TrimLeft(title, ".")
	if title == "" {
		return "volume"
	}
	return title
}
