package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dtnitsch/manga-downloadr/models"
	"github.com/dtnitsch/manga-downloadr/pkg/codec"
)

// Document is one paginated output file being assembled.
type Document interface {
	AddPage(width, height float64) error
	PlaceImage(path string, rect Rect) error
	// Close finalizes the document to its output file.
	Close() error
	// Abort discards everything written so far.
	Abort()
}

// Writer creates documents with no initial page.
type Writer interface {
	Create(path string) (Document, error)
}

// Dimensioner reads native image sizes.
type Dimensioner interface {
	Dimensions(path string) (codec.Size, error)
}

// Rect places an image on a page, origin at the top-left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Placement computes where an image of native size goes on a page: width is
// capped at the page width, height keeps the native aspect ratio.
func Placement(native codec.Size, page models.PageSize) Rect {
	w := float64(min(page.Width, native.Width))
	h := w * float64(native.Height) / float64(native.Width)
	return Rect{X: 0, Y: 0, Width: w, Height: h}
}

type Compiler struct {
	Writer   Writer
	Dims     Dimensioner
	PageSize models.PageSize
	Logger   *slog.Logger
}

// Compile writes one volume. Any failure aborts the whole volume; no partial
// document is left behind.
func (c *Compiler) Compile(ctx context.Context, vol models.Volume) (err error) {
	doc, err := c.Writer.Create(vol.Path)
	if err != nil {
		return fmt.Errorf("volume %d: create document: %w", vol.Ordinal, err)
	}
	defer func() {
		if err != nil {
			doc.Abort()
		}
	}()

	for _, asset := range vol.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		native, err := c.Dims.Dimensions(asset)
		if err != nil {
			return fmt.Errorf("volume %d: %w", vol.Ordinal, err)
		}
		if err := doc.AddPage(float64(c.PageSize.Width), float64(c.PageSize.Height)); err != nil {
			return fmt.Errorf("volume %d: add page for %s: %w", vol.Ordinal, asset, err)
		}
		if err := doc.PlaceImage(asset, Placement(native, c.PageSize)); err != nil {
			return fmt.Errorf("volume %d: place %s: %w", vol.Ordinal, asset, err)
		}
	}

	if err := doc.Close(); err != nil {
		return fmt.Errorf("volume %d: finalize: %w", vol.Ordinal, err)
	}
	return nil
}

// CompileAll compiles every volume in order. A failed volume does not stop
// the others; all failures are returned joined.
func (c *Compiler) CompileAll(ctx context.Context, volumes []models.Volume) (int, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	written := 0
	for _, vol := range volumes {
		if err := c.Compile(ctx, vol); err != nil {
			logger.Error("Volume compilation failed", "volume", vol.Ordinal, "path", vol.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		written++
		logger.Info("Volume written", "volume", vol.Ordinal, "path", vol.Path, "pages", len(vol.Assets))
	}
	return written, errors.Join(errs...)
}
