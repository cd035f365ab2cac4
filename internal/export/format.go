// Package export writes transcripts as txt, docx, pdf or html files.
package export

import (
	"fmt"
	"strings"
	"time"
)

type Format string

const (
	FormatTXT  Format = "txt"
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// Formats lists the supported formats in menu order.
func Formats() []Format {
	return []Format{FormatTXT, FormatDOCX, FormatPDF, FormatHTML}
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported export format %q (want txt, docx, pdf or html)", s)
}

func (f Format) Ext() string {
	return "." + string(f)
}

// MIMEType is the Content-Type used when serving the file.
func (f Format) MIMEType() string {
	switch f {
	case FormatTXT:
		return "text/plain; charset=utf-8"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}

// Record describes a written export file.
type Record struct {
	ID        string    `json:"id,omitempty"`
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Format    Format    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
