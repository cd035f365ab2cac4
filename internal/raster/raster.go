// Package raster renders PDF pages to in-memory PNG images.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
)

const (
	MinDPI     = 100
	MaxDPI     = 300
	DefaultDPI = 200

	DefaultScratchPrefix = "devanagari_ocr_"
)

// Options control one rasterization call.
type Options struct {
	DPI           int
	Workers       int
	ScratchPrefix string
}

func (o Options) normalized() Options {
	o.DPI = ClampDPI(o.DPI)
	if o.Workers < 1 {
		o.Workers = config.DefaultWorkers()
	}
	if o.ScratchPrefix == "" {
		o.ScratchPrefix = DefaultScratchPrefix
	}
	return o
}

// Rasterizer converts a PDF into one image per page, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, opts Options) ([]document.PageImage, error)
	Name() string
}

// ClampDPI bounds dpi to [MinDPI, MaxDPI]; zero selects DefaultDPI.
func ClampDPI(dpi int) int {
	switch {
	case dpi == 0:
		return DefaultDPI
	case dpi < MinDPI:
		return MinDPI
	case dpi > MaxDPI:
		return MaxDPI
	}
	return dpi
}

// New builds the rasterizer selected by cfg.Rasterizer.
func New(cfg config.ProcessingConfig, logger *zap.Logger) (Rasterizer, error) {
	switch cfg.Rasterizer {
	case "", "pdftoppm":
		return NewPdftoppm("", "", logger), nil
	case "fitz":
		return NewFitz(logger)
	default:
		return nil, fmt.Errorf("unknown rasterizer %q", cfg.Rasterizer)
	}
}

// withScratch runs fn inside a fresh temporary directory that is removed on
// every return path.
func withScratch(prefix string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "create scratch directory")
	}
	defer os.RemoveAll(dir)
	return fn(dir)
}

type pageRange struct {
	First int // 1-based, inclusive
	Last  int
}

// splitRanges divides pages 1..total into at most workers contiguous ranges
// of near-equal length.
func splitRanges(total, workers int) []pageRange {
	if total < 1 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	ranges := make([]pageRange, 0, workers)
	size, extra := total/workers, total%workers
	first := 1
	for i := 0; i < workers; i++ {
		n := size
		if i < extra {
			n++
		}
		ranges = append(ranges, pageRange{First: first, Last: first + n - 1})
		first += n
	}
	return ranges
}

// pageImage wraps encoded PNG bytes, reading dimensions from the header.
func pageImage(index, dpi int, data []byte) (document.PageImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return document.PageImage{}, fmt.Errorf("page %d: decode image header: %w", index+1, err)
	}
	return document.PageImage{
		Index:  index,
		Data:   data,
		Width:  cfg.Width,
		Height: cfg.Height,
		DPI:    dpi,
	}, nil
}
