package volume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/dtnitsch/manga-downloadr/pkg/storage"
)

// PDFWriter writes volumes as PDF files using pdfcpu's image import.
type PDFWriter struct {
	Dims Dimensioner
}

func NewPDFWriter(dims Dimensioner) *PDFWriter {
	return &PDFWriter{Dims: dims}
}

func (w *PDFWriter) Create(path string) (Document, error) {
	if path == "" {
		return nil, errors.New("empty output path")
	}
	return &pdfDocument{path: path, dims: w.Dims}, nil
}

type pdfPage struct {
	width, height float64
	image         string
	desc          string
}

// pdfDocument buffers pages and emits them on Close. Consecutive pages with
// identical geometry are imported in one pdfcpu call.
type pdfDocument struct {
	path   string
	dims   Dimensioner
	pages  []pdfPage
	closed bool
}

func (d *pdfDocument) AddPage(width, height float64) error {
	if d.closed {
		return errors.New("document already closed")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid page size %vx%v", width, height)
	}
	d.pages = append(d.pages, pdfPage{width: width, height: height})
	return nil
}

func (d *pdfDocument) PlaceImage(path string, rect Rect) error {
	if len(d.pages) == 0 {
		return errors.New("no page to place image on")
	}
	page := &d.pages[len(d.pages)-1]
	if page.image != "" {
		return errors.New("page already has an image")
	}
	native, err := d.dims.Dimensions(path)
	if err != nil {
		return err
	}
	page.image = path
	page.desc = ImportDescription(page.width, page.height, rect, float64(native.Width))
	return nil
}

// ImportDescription builds the pdfcpu import description for one page: fixed page
// dimensions, image anchored top-left, scaled absolutely to rect.Width.
func ImportDescription(pageWidth, pageHeight float64, rect Rect, nativeWidth float64) string {
	scale := 1.0
	if nativeWidth > 0 {
		scale = rect.Width / nativeWidth
	}
	if scale < 0.0001 {
		scale = 0.0001
	}
	return fmt.Sprintf("dimensions:%s %s, position:tl, offset:%s %s, scalefactor:%s abs",
		num(pageWidth), num(pageHeight), num(rect.X), num(rect.Y), strconv.FormatFloat(scale, 'f', 4, 64))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (d *pdfDocument) Close() error {
	if d.closed {
		return errors.New("document already closed")
	}
	d.closed = true
	if len(d.pages) == 0 {
		return errors.New("volume has no pages")
	}

	var current []byte
	for start := 0; start < len(d.pages); {
		end := start + 1
		for end < len(d.pages) && d.pages[end].desc == d.pages[start].desc {
			end++
		}
		out, err := d.importRun(current, d.pages[start:end])
		if err != nil {
			return err
		}
		current = out
		start = end
	}
	return storage.WriteFile(d.path, current, 0644)
}

func (d *pdfDocument) importRun(prev []byte, pages []pdfPage) ([]byte, error) {
	if pages[0].image == "" {
		return nil, errors.New("page without image")
	}
	imp, err := api.Import(pages[0].desc, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("invalid import description %q: %w", pages[0].desc, err)
	}

	readers := make([]io.Reader, 0, len(pages))
	var files []*os.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, p := range pages {
		f, err := os.Open(p.image)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	var rs io.ReadSeeker
	if prev != nil {
		rs = bytes.NewReader(prev)
	}
	var buf bytes.Buffer
	if err := api.ImportImages(rs, &buf, readers, imp, nil); err != nil {
		return nil, fmt.Errorf("pdf import: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *pdfDocument) Abort() {
	d.closed = true
	d.pages = nil
}
