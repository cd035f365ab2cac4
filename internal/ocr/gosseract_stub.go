//go:build !gosseract

package ocr

import (
	"errors"

	"go.uber.org/zap"
)

// ErrGosseractNotEnabled is returned when the in-process engine was not
// compiled in. Rebuild with -tags gosseract.
var ErrGosseractNotEnabled = errors.New("gosseract engine not enabled; rebuild with -tags gosseract")

func NewGosseract(tessdataDir string, logger *zap.Logger) (Engine, error) {
	return nil, ErrGosseractNotEnabled
}
