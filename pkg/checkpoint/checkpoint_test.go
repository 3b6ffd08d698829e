package checkpoint

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/dtnitsch/manga-downloadr/models"
)

func testConfig(t *testing.T) models.Config {
	t.Helper()
	cfg := models.DefaultConfig()
	cfg.OutputRoot = t.TempDir()
	cfg.CheckpointDir = t.TempDir()
	return cfg
}

func TestLoadOrCreate_FreshThenResumed(t *testing.T) {
	cfg := testConfig(t)

	s, err := Open(cfg.CheckpointDir, "naruto")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	job, resumed, err := s.LoadOrCreate(cfg, "http://www.mangareader.net/naruto")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if resumed {
		t.Error("first LoadOrCreate() resumed = true")
	}

	job.Title = "Naruto"
	job.Chapters = []models.ChapterRef{{Locator: "/naruto/1", Ordinal: 0}, {Locator: "/naruto/2", Ordinal: 1}}
	job.Pages["/naruto/1"] = []models.PageRef{{Chapter: "/naruto/1", Locator: "/naruto/1"}}
	job.Images["/naruto/1"] = []models.ImageRecord{{Chapter: "/naruto/1", Folder: "Naruto 1", File: "Page 1.jpg", SourceURL: "http://cdn/1.jpg"}}
	job.PageCount = 1
	job.State.Mark(models.StageChapters)
	job.State.Mark(models.StagePages)

	if err := s.Persist(job); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(cfg.CheckpointDir, "naruto")
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	// A different URL must not override what was stored.
	loaded, resumed, err := s2.LoadOrCreate(cfg, "http://elsewhere/")
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !resumed {
		t.Error("second LoadOrCreate() resumed = false")
	}
	if !reflect.DeepEqual(loaded, job) {
		t.Errorf("loaded job differs:\n got %+v\nwant %+v", loaded, job)
	}
}

func TestOpen_Locked(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "bleach")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := Open(dir, "bleach"); !errors.Is(err, ErrLocked) {
		t.Errorf("second Open() error = %v, want ErrLocked", err)
	}

	other, err := Open(dir, "onepiece")
	if err != nil {
		t.Fatalf("Open() of other job error = %v", err)
	}
	_ = other.Close()
}

func TestDecode_Strict(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{"future version", "schema_version: 2\njob:\n  name: x\n", ErrUnsupportedVersion},
		{"missing version", "job:\n  name: x\n", ErrUnsupportedVersion},
		{"unknown field", "schema_version: 1\njob:\n  name: x\n  favourite: y\n", nil},
		{"unknown marker", "schema_version: 1\njob:\n  name: x\n  processing_state: [covers]\n", nil},
		{"no job", "schema_version: 1\n", nil},
		{"garbage", ":::", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			if err == nil {
				t.Fatal("Decode() expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrCreate_CorruptSnapshotIsAnError(t *testing.T) {
	cfg := testConfig(t)
	s, err := Open(cfg.CheckpointDir, "naruto")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := os.WriteFile(s.Path(), []byte("schema_version: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadOrCreate(cfg, "http://x/"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("LoadOrCreate() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecode_FillsEmptyMaps(t *testing.T) {
	job, err := Decode([]byte("schema_version: 1\njob:\n  name: x\n"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if job.Pages == nil || job.Images == nil {
		t.Error("Decode() left maps nil")
	}
}
