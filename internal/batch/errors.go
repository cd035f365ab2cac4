package batch

import (
	"fmt"

	apperrors "github.com/gmsas95/devocr/internal/errors"
)

// BatchError aborts a whole document. It matches apperrors.ErrBatchFailed.
type BatchError struct {
	Batch int
	Start int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("Error processing batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func (e *BatchError) Is(target error) bool {
	return apperrors.Is(apperrors.ErrBatchFailed, target)
}

func (e *BatchError) Code() string {
	return apperrors.ErrBatchFailed.Code
}
