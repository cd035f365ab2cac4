package security

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrEmptyUpload    = errors.New("uploaded file is empty")
	ErrNotPDF         = errors.New("uploaded file is not a PDF")
	ErrUploadTooLarge = errors.New("uploaded file is too large")
)

var pdfMagic = []byte("%PDF-")

// pdfHeaderWindow is how far into the file the header may appear; some
// producers prepend junk bytes that readers tolerate.
const pdfHeaderWindow = 1024

// ValidatePDF checks size and the %PDF- header. maxBytes <= 0 disables the
// size check.
func ValidatePDF(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, len(data), maxBytes)
	}

	head := data
	if len(head) > pdfHeaderWindow {
		head = head[:pdfHeaderWindow]
	}
	if !bytes.Contains(head, pdfMagic) {
		return ErrNotPDF
	}
	return nil
}
