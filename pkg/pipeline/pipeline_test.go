package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/codec"
	"github.com/dtnitsch/manga-downloadr/pkg/manifest"
	"github.com/dtnitsch/manga-downloadr/pkg/volume"
)

// site serves a two-chapter, two-page manga.
type site struct {
	mu       sync.Mutex
	hits     map[string]int
	labels   map[string]string // page path -> alt override
	failures map[string]int    // path -> status code
	png      []byte
	hook     func(path string) // called before every response
}

func newSite(t *testing.T) (*site, *httptest.Server) {
	t.Helper()
	s := &site{
		hits:     map[string]int{},
		labels:   map[string]string{},
		failures: map[string]int{},
		png:      pngBytes(t, 60, 80),
	}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *site) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	code := s.failures[r.URL.Path]
	alt, hasAlt := s.labels[r.URL.Path]
	hook := s.hook
	img := s.png
	s.mu.Unlock()

	if hook != nil {
		hook(r.URL.Path)
	}

	if code != 0 {
		w.WriteHeader(code)
		return
	}

	var ch, pg int
	switch {
	case r.URL.Path == "/manga":
		fmt.Fprint(w, `<html><body><div id="mangaproperties"><h1>Test</h1></div>
<table id="listing"><tr><td><a href="/manga/1">Test 1</a></td></tr><tr><td><a href="/manga/2">Test 2</a></td></tr></table>
</body></html>`)
	case strings.HasPrefix(r.URL.Path, "/img/"):
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	default:
		if n, _ := fmt.Sscanf(r.URL.Path, "/manga/%d/%d", &ch, &pg); n == 2 {
			if !hasAlt {
				alt = fmt.Sprintf("Test %d - Page %d", ch, pg)
			}
			fmt.Fprintf(w, `<html><body><img id="img" alt="%s" src="/img/%d/%d.png"></body></html>`, alt, ch, pg)
			return
		}
		if n, _ := fmt.Sscanf(r.URL.Path, "/manga/%d", &ch); n == 1 {
			fmt.Fprintf(w, `<html><body><div id="selectpage"><select id="pageMenu">
<option value="/manga/%[1]d/1">1</option><option value="/manga/%[1]d/2">2</option>
</select></div></body></html>`, ch)
			return
		}
		http.NotFound(w, r)
	}
}

func (s *site) update(fn func(s *site)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *site) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.hits {
		n += c
	}
	return n
}

func (s *site) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = map[string]int{}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y), B: uint8(x), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type memCheckpoint struct {
	mu     sync.Mutex
	states [][]models.Stage
}

func (m *memCheckpoint) Persist(job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, append([]models.Stage(nil), job.State...))
	return nil
}

type recordingWriter struct {
	mu      sync.Mutex
	volumes map[string][]string
}

func (w *recordingWriter) Create(path string) (volume.Document, error) {
	return &recordingDoc{w: w, path: path}, nil
}

type recordingDoc struct {
	w      *recordingWriter
	path   string
	images []string
}

func (d *recordingDoc) AddPage(width, height float64) error { return nil }

func (d *recordingDoc) PlaceImage(path string, _ volume.Rect) error {
	d.images = append(d.images, path)
	return nil
}

func (d *recordingDoc) Close() error {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	if d.w.volumes == nil {
		d.w.volumes = map[string][]string{}
	}
	d.w.volumes[filepath.Base(d.path)] = d.images
	return nil
}

func (d *recordingDoc) Abort() {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, srv *httptest.Server, cfg models.Config) (*Pipeline, *memCheckpoint, *recordingWriter) {
	t.Helper()
	cfg.OutputRoot = t.TempDir()
	cfg.Concurrency = 4
	cfg.VolumeSize = 3
	job := cfg.NewJob(srv.URL+"/manga", "test")

	cp := &memCheckpoint{}
	w := &recordingWriter{}
	p := New(job, cfg,
		WithHTTPClient(srv.Client()),
		WithCheckpoint(cp),
		WithWriter(w),
		WithLogger(quietLogger()),
	)
	return p, cp, w
}

func TestRun_EndToEnd(t *testing.T) {
	_, srv := newSite(t)
	p, cp, w := newTestPipeline(t, srv, models.DefaultConfig())

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(results) != len(models.Stages) {
		t.Fatalf("got %d results, want %d", len(results), len(models.Stages))
	}
	for _, r := range results {
		if !r.Marked || r.Skipped || r.Report.Failed != 0 {
			t.Errorf("stage %s: marked=%v skipped=%v failed=%d", r.Stage, r.Marked, r.Skipped, r.Report.Failed)
		}
	}
	for _, s := range models.Stages {
		if !p.Job.State.Has(s) {
			t.Errorf("marker %s missing", s)
		}
	}

	if p.Job.Title != "Test" {
		t.Errorf("title = %q", p.Job.Title)
	}
	if p.Job.PageCount != 4 || p.Job.ImageCount() != 4 {
		t.Errorf("pages = %d, images = %d, want 4 and 4", p.Job.PageCount, p.Job.ImageCount())
	}

	// One persist per stage, each carrying that stage's marker.
	if len(cp.states) != len(models.Stages) {
		t.Fatalf("persisted %d times, want %d", len(cp.states), len(models.Stages))
	}
	for i, state := range cp.states {
		if len(state) != i+1 || state[i] != models.Stages[i] {
			t.Errorf("persist %d state = %v", i, state)
		}
	}

	dir := p.Job.Dir()
	want := map[string][]string{
		"Test 1.pdf": {
			filepath.Join(dir, "Test 1", "Page 1.png"),
			filepath.Join(dir, "Test 1", "Page 2.png"),
			filepath.Join(dir, "Test 2", "Page 1.png"),
		},
		"Test 2.pdf": {
			filepath.Join(dir, "Test 2", "Page 2.png"),
		},
	}
	if len(w.volumes) != len(want) {
		t.Fatalf("volumes = %v", w.volumes)
	}
	for name, assets := range want {
		got := w.volumes[name]
		if strings.Join(got, "|") != strings.Join(assets, "|") {
			t.Errorf("volume %s = %v, want %v", name, got, assets)
		}
	}

	// Images are normalized into the page box.
	size, err := codec.New().Dimensions(filepath.Join(dir, "Test 1", "Page 1.png"))
	if err != nil {
		t.Fatal(err)
	}
	if size != (codec.Size{Width: 600, Height: 800}) {
		t.Errorf("normalized size = %+v", size)
	}

	if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err != nil {
		t.Errorf("manifest missing: %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "Test 1"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("leftover part file %s", e.Name())
		}
	}
}

func TestRun_SkipsExistingImages(t *testing.T) {
	s, srv := newSite(t)
	p, _, _ := newTestPipeline(t, srv, models.DefaultConfig())

	existing := filepath.Join(p.Job.Dir(), "Test 1", "Page 1.png")
	if err := os.MkdirAll(filepath.Dir(existing), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, s.png, 0644); err != nil {
		t.Fatal(err)
	}

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := s.count("/img/1/1.png"); n != 0 {
		t.Errorf("existing image fetched %d times", n)
	}
	if n := s.count("/img/1/2.png"); n != 1 {
		t.Errorf("missing image fetched %d times, want 1", n)
	}

	dl := results[3]
	if dl.Stage != models.StageDownload {
		t.Fatalf("result 3 is %s", dl.Stage)
	}
	if dl.Cached != 1 || dl.Report.Succeeded != 4 {
		t.Errorf("cached = %d, succeeded = %d", dl.Cached, dl.Report.Succeeded)
	}

	data, _ := os.ReadFile(existing)
	if !bytes.Equal(data, s.png) {
		t.Error("existing image was rewritten")
	}
}

func TestRun_CompletedJobMakesNoRequests(t *testing.T) {
	s, srv := newSite(t)
	p, _, _ := newTestPipeline(t, srv, models.DefaultConfig())

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.reset()

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if n := s.total(); n != 0 {
		t.Errorf("completed job issued %d requests", n)
	}
	for _, r := range results {
		if !r.Skipped {
			t.Errorf("stage %s ran again", r.Stage)
		}
	}
}

func TestRun_ResumesAfterLastMarker(t *testing.T) {
	s, srv := newSite(t)
	p, _, _ := newTestPipeline(t, srv, models.DefaultConfig())

	root := srv.URL + "/manga"
	p.Job.Title = "Test"
	p.Job.Chapters = []models.ChapterRef{{Locator: "/manga/2", Ordinal: 1}}
	p.Job.Pages = map[string][]models.PageRef{
		"/manga/2": {{Chapter: "/manga/2", Locator: "/manga/2/1"}},
	}
	p.Job.PageCount = 1
	p.Job.State = models.ProcessingState{models.StageChapters, models.StagePages}
	p.Job.RootURL = root

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !results[0].Skipped || !results[1].Skipped || results[2].Skipped {
		t.Errorf("unexpected skip pattern: %+v", results[:3])
	}
	if s.count("/manga") != 0 || s.count("/manga/2") != 0 {
		t.Error("completed discovery stages issued requests")
	}
	if s.count("/manga/1/1") != 0 || s.count("/manga/2/2") != 0 {
		t.Error("pages outside the stored job were fetched")
	}
	if s.count("/manga/2/1") != 1 || s.count("/img/2/1.png") != 1 {
		t.Error("stored page was not processed")
	}
}

func TestRun_DropsMalformedLabel(t *testing.T) {
	s, srv := newSite(t)
	s.update(func(s *site) { s.labels["/manga/2/2"] = "no separator here" })
	p, _, w := newTestPipeline(t, srv, models.DefaultConfig())

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	img := results[2]
	if img.Report.Total != 4 || img.Report.Failed != 1 || !img.Marked {
		t.Errorf("image discovery report = %+v, marked = %v", img.Report, img.Marked)
	}
	if len(img.Report.Failures) != 1 || Classify(img.Report.Failures[0].Err) != KindParse {
		t.Errorf("failures = %+v", img.Report.Failures)
	}
	if p.Job.ImageCount() != 3 {
		t.Errorf("images = %d, want 3", p.Job.ImageCount())
	}
	if len(w.volumes) != 1 || len(w.volumes["Test 1.pdf"]) != 3 {
		t.Errorf("volumes = %v", w.volumes)
	}
}

func TestRun_BelowThresholdLeavesMarkerUnset(t *testing.T) {
	s, srv := newSite(t)
	s.update(func(s *site) { s.failures["/manga/1/2"] = http.StatusInternalServerError })
	cfg := models.DefaultConfig()
	cfg.MinSuccessRatio = 1
	p, cp, w := newTestPipeline(t, srv, cfg)

	results, err := p.Run(context.Background())
	if !errors.Is(err, ErrBelowThreshold) {
		t.Fatalf("Run() error = %v, want ErrBelowThreshold", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if p.Job.State.Has(models.StageImages) {
		t.Error("image discovery marked despite missing threshold")
	}
	if Classify(results[2].Report.Failures[0].Err) != KindTransport {
		t.Errorf("failure kind = %s", Classify(results[2].Report.Failures[0].Err))
	}
	if len(cp.states) != 3 {
		t.Errorf("persisted %d times, want 3", len(cp.states))
	}
	if len(w.volumes) != 0 {
		t.Errorf("compiled volumes after failed stage: %v", w.volumes)
	}
}

func TestRun_ChapterListingFailure(t *testing.T) {
	s, srv := newSite(t)
	s.update(func(s *site) { s.failures["/manga"] = http.StatusNotFound })
	p, cp, _ := newTestPipeline(t, srv, models.DefaultConfig())

	results, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded with unreachable root")
	}
	if len(results) != 1 || results[0].Marked {
		t.Errorf("results = %+v", results)
	}
	if len(p.Job.State) != 0 {
		t.Errorf("state = %v", p.Job.State)
	}
	if len(cp.states) != 1 {
		t.Errorf("persisted %d times, want 1", len(cp.states))
	}
	if s.count("/manga/1") != 0 {
		t.Error("page discovery ran after chapter failure")
	}
}

func TestRun_BrokenImageKeepsNoFile(t *testing.T) {
	s, srv := newSite(t)
	p, _, _ := newTestPipeline(t, srv, models.DefaultConfig())
	s.update(func(s *site) { s.png = []byte("not an image") })

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dl := results[3]
	if dl.Report.Failed != 4 {
		t.Fatalf("download report = %+v", dl.Report)
	}
	if Classify(dl.Report.Failures[0].Err) != KindCodec {
		t.Errorf("failure kind = %s", Classify(dl.Report.Failures[0].Err))
	}
	entries, _ := os.ReadDir(filepath.Join(p.Job.Dir(), "Test 1"))
	if len(entries) != 0 {
		t.Errorf("left files behind: %v", entries)
	}
}

func TestRun_CancelledBeforePageDiscovery(t *testing.T) {
	s, srv := newSite(t)
	p, cp, _ := newTestPipeline(t, srv, models.DefaultConfig())
	p.Job.Chapters = []models.ChapterRef{{Locator: "/manga/1", Ordinal: 0}, {Locator: "/manga/2", Ordinal: 1}}
	p.Job.State = models.ProcessingState{models.StageChapters}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(p.Job.State) != 1 || p.Job.State.Has(models.StagePages) {
		t.Errorf("state after cancel = %v", p.Job.State)
	}
	for _, state := range cp.states {
		if len(state) != 1 {
			t.Errorf("persisted state %v carries new markers", state)
		}
	}
	if n := s.total(); n != 0 {
		t.Errorf("cancelled run issued %d requests", n)
	}
}

func TestRun_CancelledDuringPageDiscovery(t *testing.T) {
	s, srv := newSite(t)
	p, cp, _ := newTestPipeline(t, srv, models.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.update(func(s *site) {
		s.hook = func(path string) {
			if path == "/manga/1" {
				cancel()
			}
		}
	})

	results, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !p.Job.State.Has(models.StageChapters) {
		t.Error("chapter discovery finished before cancel but was not marked")
	}
	if p.Job.State.Has(models.StagePages) || len(p.Job.State) != 1 {
		t.Errorf("state after cancel = %v", p.Job.State)
	}
	if len(results) != 2 || results[1].Marked {
		t.Errorf("results = %+v", results)
	}
	last := cp.states[len(cp.states)-1]
	if len(last) != 1 {
		t.Errorf("last persisted state = %v", last)
	}
	if s.count("/manga/1/1") != 0 {
		t.Error("image discovery ran after cancel")
	}
}

func TestRun_UnreadableDestinationIsNotCached(t *testing.T) {
	s, srv := newSite(t)
	p, _, _ := newTestPipeline(t, srv, models.DefaultConfig())

	// A file where the chapter folder belongs makes every stat under it fail.
	if err := os.MkdirAll(p.Job.Dir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p.Job.Dir(), "Test 1"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dl := results[3]
	if dl.Cached != 0 || dl.Report.Failed != 2 || dl.Report.Succeeded != 2 {
		t.Errorf("cached = %d, report = %+v", dl.Cached, dl.Report)
	}
	for _, f := range dl.Report.Failures {
		if Classify(f.Err) != KindIO {
			t.Errorf("failure %s kind = %s", f.Key, Classify(f.Err))
		}
	}
	if n := s.count("/img/1/1.png"); n != 0 {
		t.Errorf("image under unreadable folder fetched %d times", n)
	}
}
