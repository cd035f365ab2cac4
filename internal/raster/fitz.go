//go:build fitz

package raster

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
)

// Fitz rasterizes in-process with MuPDF. Every worker opens its own
// document handle since fitz.Document is not safe for concurrent use.
type Fitz struct {
	logger *zap.Logger
}

// NewFitz creates the MuPDF backend. Build with -tags fitz.
func NewFitz(logger *zap.Logger) (Rasterizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fitz{logger: logger}, nil
}

func (f *Fitz) Name() string { return "fitz" }

func (f *Fitz) Rasterize(ctx context.Context, pdf []byte, opts Options) ([]document.PageImage, error) {
	opts = opts.normalized()

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRasterize.Code, "Failed to open PDF")
	}
	total := doc.NumPage()
	doc.Close()
	if total == 0 {
		return nil, apperrors.Wrap(fmt.Errorf("document has 0 pages"), apperrors.ErrNoPages.Code, apperrors.ErrNoPages.Message)
	}

	pages := make([]document.PageImage, total)
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range splitRanges(total, opts.Workers) {
		r := r
		g.Go(func() error {
			return f.renderRange(gctx, pdf, r, opts.DPI, pages)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (f *Fitz) renderRange(ctx context.Context, pdf []byte, r pageRange, dpi int, pages []document.PageImage) error {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrRasterize.Code, "Failed to open PDF")
	}
	defer doc.Close()

	for n := r.First - 1; n < r.Last; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := doc.ImageDPI(n, float64(dpi))
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrRasterize.Code, fmt.Sprintf("Failed to convert page %d", n+1))
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return apperrors.Wrap(err, apperrors.ErrRasterize.Code, fmt.Sprintf("Failed to encode page %d", n+1))
		}

		bounds := img.Bounds()
		pages[n] = document.PageImage{
			Index:  n,
			Data:   buf.Bytes(),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			DPI:    dpi,
		}
	}
	return nil
}
