// Package checkpoint persists job records between runs.
//
// Each job has one yaml document, <dir>/<name>.yaml, holding a versioned
// snapshot of the whole job. A sibling lock file keeps two processes from
// driving the same job at once.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/storage"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the version written into every snapshot.
const SchemaVersion = 1

var (
	ErrLocked             = errors.New("checkpoint is locked by another process")
	ErrUnsupportedVersion = errors.New("unsupported checkpoint schema version")
)

// Snapshot is the on-disk document.
type Snapshot struct {
	SchemaVersion int         `yaml:"schema_version"`
	SavedAt       time.Time   `yaml:"saved_at"`
	Job           *models.Job `yaml:"job"`
}

type Store struct {
	dir  string
	name string
	lock *flock.Flock
}

// Open locks the checkpoint for name inside dir.
func Open(dir, name string) (*Store, error) {
	if name == "" {
		return nil, errors.New("checkpoint name is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &Store{dir: dir, name: name}
	s.lock = flock.New(s.Path() + ".lock")
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire checkpoint lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.Path(), ErrLocked)
	}
	return s, nil
}

// Close releases the lock.
func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return PathFor(s.dir, s.name)
}

// PathFor returns where the snapshot of job name lives inside dir.
func PathFor(dir, name string) string {
	return filepath.Join(dir, name+".yaml")
}

// LoadOrCreate returns the stored job verbatim when a snapshot exists, or a
// fresh job built from cfg. The bool reports whether the job was resumed.
func (s *Store) LoadOrCreate(cfg models.Config, rootURL string) (*models.Job, bool, error) {
	job, err := Load(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return cfg.NewJob(rootURL, s.name), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Persist overwrites the snapshot with the full job.
func (s *Store) Persist(job *models.Job) error {
	data, err := Encode(job)
	if err != nil {
		return err
	}
	if err := storage.WriteFile(s.Path(), data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load reads a snapshot without taking the lock. Used by read-only commands.
func Load(path string) (*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Encode renders job as a versioned snapshot.
func Encode(job *models.Job) ([]byte, error) {
	snap := Snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Job:           job,
	}
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot strictly: unknown fields and other schema versions
// are errors.
func Decode(data []byte) (*models.Job, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	if snap.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.SchemaVersion)
	}
	if snap.Job == nil {
		return nil, errors.New("checkpoint has no job record")
	}
	if snap.Job.Pages == nil {
		snap.Job.Pages = map[string][]models.PageRef{}
	}
	if snap.Job.Images == nil {
		snap.Job.Images = map[string][]models.ImageRecord{}
	}
	return snap.Job, nil
}
