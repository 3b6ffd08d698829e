package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PartPrefix starts the name of every in-progress file. Readers of the
// output tree skip names with this prefix.
const PartPrefix = "."

type Storage struct{}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
}

// SaveFile writes content to filePath atomically, creating parent directories.
func (s *Storage) SaveFile(filePath string, content []byte) error {
	return WriteFile(filePath, content, 0644)
}

// Exists reports whether path is present. A stat failure other than
// not-exist is returned, never treated as present.
func (s *Storage) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("error checking %s: %w", path, err)
}

// GetFileStats returns metadata about a file using os.Stat (no I/O overhead).
func (s *Storage) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
	}, nil
}

// CreatePart opens a hidden temp file next to finalPath. The caller either
// commits it with Commit or removes it.
func CreatePart(finalPath string) (*os.File, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	base := filepath.Base(finalPath)
	ext := filepath.Ext(base)
	// Keep the extension last so format detection by name still works.
	f, err := os.CreateTemp(dir, PartPrefix+strings.TrimSuffix(base, ext)+".part-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for %s: %w", finalPath, err)
	}
	return f, nil
}

// Commit moves a finished part file onto its final name.
func Commit(partPath, finalPath string) error {
	if err := os.Chmod(partPath, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", partPath, err)
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		return fmt.Errorf("atomic rename for %s: %w", finalPath, err)
	}
	return nil
}

// WriteFile writes data to a temp file in the same directory and renames it
// over path, so readers never see a partial file.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := CreatePart(path)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := Commit(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Chmod(path, perm)
}

// IsPart reports whether name belongs to an in-progress or hidden file.
func IsPart(name string) bool {
	return strings.HasPrefix(name, PartPrefix)
}
