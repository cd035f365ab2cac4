// Package ocr turns page images into text by delegating to Tesseract.
package ocr

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/document"
)

// Engine recognizes the text on one page image. Implementations must be
// safe for concurrent use by the batch workers.
type Engine interface {
	Recognize(ctx context.Context, img document.PageImage, settings Settings) (string, error)
	Name() string
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img document.PageImage, settings Settings) (string, error)

func (f EngineFunc) Recognize(ctx context.Context, img document.PageImage, settings Settings) (string, error) {
	return f(ctx, img, settings)
}

func (f EngineFunc) Name() string { return "func" }

// New builds the engine selected by cfg.Engine.
func New(cfg config.OCRConfig, logger *zap.Logger) (Engine, error) {
	switch cfg.Engine {
	case "", "tesseract":
		return NewTesseract(cfg.Binary, cfg.TessdataDir, logger), nil
	case "gosseract":
		return NewGosseract(cfg.TessdataDir, logger)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}
