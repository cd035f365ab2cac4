package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/document"
)

// Tesseract runs the tesseract binary once per page, feeding the PNG on
// stdin and reading the text from stdout.
type Tesseract struct {
	binary      string
	tessdataDir string
	logger      *zap.Logger
}

// NewTesseract creates a CLI engine. An empty binary means "tesseract" on PATH.
func NewTesseract(binary, tessdataDir string, logger *zap.Logger) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tesseract{binary: binary, tessdataDir: tessdataDir, logger: logger}
}

func (t *Tesseract) Name() string { return "tesseract" }

// IsAvailable checks if the binary can be found
func (t *Tesseract) IsAvailable() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Recognize implements Engine.
func (t *Tesseract) Recognize(ctx context.Context, img document.PageImage, settings Settings) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("page %d: empty image", img.Label())
	}

	args := append([]string{"stdin", "stdout"}, settings.Args()...)
	if img.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(img.DPI))
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = bytes.NewReader(img.Data)
	if t.tessdataDir != "" {
		cmd.Env = append(os.Environ(), "TESSDATA_PREFIX="+t.tessdataDir)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("tesseract failed: %w: %s", err, msg)
		}
		return "", fmt.Errorf("tesseract failed: %w", err)
	}

	t.logger.Debug("Page recognized",
		zap.Int("page", img.Label()),
		zap.Int("bytes", stdout.Len()),
	)

	return trimOutput(stdout.String()), nil
}

// trimOutput drops the trailing newlines and form feed tesseract appends.
// Leading whitespace is page content and is kept.
func trimOutput(s string) string {
	return strings.TrimRight(s, " \t\r\n\f")
}
