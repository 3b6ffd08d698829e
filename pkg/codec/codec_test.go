package codec

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestFit(t *testing.T) {
	box := Size{Width: 600, Height: 800}
	tests := []struct {
		name string
		src  Size
		want Size
	}{
		{"portrait larger", Size{1200, 1600}, Size{600, 800}},
		{"tall", Size{1000, 4000}, Size{200, 800}},
		{"wide", Size{1200, 600}, Size{600, 300}},
		{"small upscales", Size{300, 400}, Size{600, 800}},
		{"degenerate", Size{0, 0}, box},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fit(tt.src, box); got != tt.want {
				t.Errorf("Fit(%v) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Page 1.png")
	writePNG(t, path, 40, 60)

	got, err := New().Dimensions(path)
	if err != nil {
		t.Fatalf("Dimensions() error = %v", err)
	}
	if got != (Size{40, 60}) {
		t.Errorf("Dimensions() = %v, want 40x60", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.jpg")
	_ = os.WriteFile(bad, []byte("not an image"), 0644)
	if _, err := New().Dimensions(bad); err == nil {
		t.Error("Dimensions() on garbage expected error")
	}
}

func TestNormalize_JPEGFromPNGBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Page 1.jpg")
	// Sources sometimes serve PNG bytes under a .jpg URL.
	writePNG(t, path, 120, 80)

	c := New()
	if err := c.Normalize(path, Size{Width: 60, Height: 80}, 50); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("normalized file is not JPEG: %v", err)
	}
	if cfg.Width != 60 || cfg.Height != 40 {
		t.Errorf("normalized size = %dx%d, want 60x40", cfg.Width, cfg.Height)
	}
}

func TestNormalize_PNGStaysPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Page 2.png")
	writePNG(t, path, 30, 40)

	if err := New().Normalize(path, Size{Width: 60, Height: 80}, 50); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	got, err := New().Dimensions(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Size{60, 80}) {
		t.Errorf("Dimensions() = %v, want 60x80", got)
	}
}

func TestNormalize_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Page 3.jpg")
	_ = os.WriteFile(path, []byte("<html>blocked</html>"), 0644)

	if err := New().Normalize(path, Size{Width: 60, Height: 80}, 50); err == nil {
		t.Error("Normalize() on HTML expected error")
	}
}
