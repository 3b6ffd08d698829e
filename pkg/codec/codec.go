// Package codec reads image dimensions and normalizes downloaded images to
// the target page size.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	// Extra decoders for sources that serve these formats.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dtnitsch/manga-downloadr/pkg/storage"
)

// Size is a pixel width × height.
type Size struct {
	Width  int
	Height int
}

type Codec struct{}

func New() *Codec {
	return &Codec{}
}

// Dimensions returns the native pixel size of the image at path.
func (c *Codec) Dimensions(path string) (Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return Size{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Size{}, fmt.Errorf("failed to read dimensions of %s: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Size{}, fmt.Errorf("image %s has empty dimensions", path)
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// Fit scales src to fit inside box, keeping its aspect ratio.
func Fit(src, box Size) Size {
	if src.Width <= 0 || src.Height <= 0 {
		return box
	}
	w := box.Width
	h := src.Height * box.Width / src.Width
	if h > box.Height {
		h = box.Height
		w = src.Width * box.Height / src.Height
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Size{Width: w, Height: h}
}

// Normalize resizes the image at path to fit box and recompresses it in place.
// Quality applies to JPEG output.
func (c *Codec) Normalize(path string, box Size, quality int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := src.Bounds()
	target := Fit(Size{Width: b.Dx(), Height: b.Dy()}, box)
	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := encode(&buf, dst, filepath.Ext(path), quality); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return storage.WriteFile(path, buf.Bytes(), 0644)
}

func encode(buf *bytes.Buffer, img image.Image, ext string, quality int) error {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	switch strings.ToLower(ext) {
	case ".png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(buf, img)
	case ".gif":
		return gif.Encode(buf, img, nil)
	default:
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	}
}
