//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/document"
)

// Gosseract recognizes pages in-process through libtesseract. Each call
// owns its client, so concurrent workers share nothing.
type Gosseract struct {
	tessdataDir string
	logger      *zap.Logger
}

// NewGosseract creates the cgo engine. Build with -tags gosseract.
func NewGosseract(tessdataDir string, logger *zap.Logger) (Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gosseract{tessdataDir: tessdataDir, logger: logger}, nil
}

func (g *Gosseract) Name() string { return "gosseract" }

func (g *Gosseract) Recognize(ctx context.Context, img document.PageImage, settings Settings) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(img.Data) == 0 {
		return "", fmt.Errorf("page %d: empty image", img.Label())
	}

	client := gosseract.NewClient()
	defer client.Close()

	if g.tessdataDir != "" {
		if err := client.SetTessdataPrefix(g.tessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(settings.Languages...); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(settings.PSM)); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if img.DPI > 0 {
		if err := client.SetVariable("user_defined_dpi", strconv.Itoa(img.DPI)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img.Data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}

	return trimOutput(text), nil
}
