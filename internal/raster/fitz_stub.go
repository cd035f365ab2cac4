//go:build !fitz

package raster

import (
	"errors"

	"go.uber.org/zap"
)

// ErrFitzNotEnabled is returned when the MuPDF backend was not compiled in.
var ErrFitzNotEnabled = errors.New("fitz rasterizer not enabled; rebuild with -tags fitz")

func NewFitz(logger *zap.Logger) (Rasterizer, error) {
	return nil, ErrFitzNotEnabled
}
