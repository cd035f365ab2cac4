package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so wrapped instances
// compare equal to the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrEnvironment = &AppError{Code: "ENV_001", Message: "OCR environment not ready"}

	ErrPageFailed  = &AppError{Code: "OCR_001", Message: "page recognition failed"}
	ErrBatchFailed = &AppError{Code: "OCR_002", Message: "batch processing failed"}

	ErrRasterize = &AppError{Code: "RASTER_001", Message: "PDF rasterization failed"}
	ErrNoPages   = &AppError{Code: "RASTER_002", Message: "PDF has no pages"}

	ErrExport        = &AppError{Code: "EXPORT_001", Message: "export failed"}
	ErrNothingToSave = &AppError{Code: "EXPORT_002", Message: "no converted text to export"}

	ErrSessionNotFound = &AppError{Code: "SESSION_001", Message: "session not found"}
	ErrSessionBusy     = &AppError{Code: "SESSION_002", Message: "conversion already running"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Detail renders the whole cause chain, one error per line, for diagnostic output.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var lines []string
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		msg := e.Error()
		if appErr, ok := e.(*AppError); ok {
			msg = fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message)
		}
		lines = append(lines, msg)
	}
	return strings.Join(lines, "\n  caused by: ")
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
