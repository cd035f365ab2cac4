package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/security"
)

// TempPrefix names in-progress writes in the output directory.
const TempPrefix = ".export-"

// Exporter renders transcripts and writes them atomically.
type Exporter struct {
	pdf     PDFRenderer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds an Exporter from config. Renderer "chrome" gets the breaker and
// the fpdf fallback; "fpdf" skips Chrome entirely.
func New(cfg config.ExportConfig, logger *zap.Logger, m *metrics.Metrics) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewFPDFRenderer(cfg.FontPath)

	var renderer PDFRenderer = fallback
	if cfg.PDFRenderer != "fpdf" {
		timeout := time.Duration(cfg.PDFTimeout) * time.Second
		chrome := NewChromeRenderer(cfg.ChromePath, timeout, logger)
		renderer = NewBreakerRenderer(chrome, fallback, logger, m)
	}
	return NewWithRenderer(renderer, logger, m)
}

func NewWithRenderer(pdf PDFRenderer, logger *zap.Logger, m *metrics.Metrics) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{pdf: pdf, logger: logger, metrics: m}
}

// Render produces the file contents for format.
func (e *Exporter) Render(ctx context.Context, text string, format Format) ([]byte, error) {
	switch format {
	case FormatTXT:
		return []byte(text), nil
	case FormatDOCX:
		return DOCX(text)
	case FormatHTML:
		return []byte(HTMLDocument(text)), nil
	case FormatPDF:
		return e.pdf.RenderPDF(ctx, text)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// Export writes text to path. Nothing is left at path when it fails.
func (e *Exporter) Export(ctx context.Context, text string, format Format, path string) (err error) {
	defer func() {
		e.metrics.RecordExport(string(format), err)
		if err != nil {
			err = apperrors.Wrap(err, apperrors.ErrExport.Code, apperrors.ErrExport.Message)
		}
	}()

	data, err := e.Render(ctx, text, format)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	e.logger.Info("Transcript exported",
		zap.String("format", string(format)),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// ExportTo picks a unique name for base inside dir and exports there.
func (e *Exporter) ExportTo(ctx context.Context, text string, format Format, dir, base string) (*Record, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrExport.Code, "create output directory")
	}

	name := UniqueFilename(dir, base, format)
	path, err := security.ResolveWithin(dir, name)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrExport.Code, "invalid output filename")
	}

	if err := e.Export(ctx, text, format, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrExport.Code, apperrors.ErrExport.Message)
	}
	return &Record{
		Path:      path,
		Filename:  name,
		Format:    format,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", filepath.Base(path), err)
	}
	ok = true
	return nil
}
