// Package document holds the page, batch and transcript types shared by the
// rasterizer, the OCR engines and the batch pipeline.
package document

import (
	"fmt"
	"strings"
)

// PageImage is one rasterized PDF page held in memory.
type PageImage struct {
	Index  int    // zero-based, defines final ordering
	Data   []byte // PNG encoded
	Width  int
	Height int
	DPI    int
}

// Label is the 1-based page number shown to users.
func (p PageImage) Label() int {
	return p.Index + 1
}

// Batch is a contiguous run of pages handled by one pool task.
type Batch struct {
	Index int
	Start int
	Pages []PageImage
}

func (b Batch) Len() int {
	return len(b.Pages)
}

// PageResult is the recognized text of one page, or the error that replaced it.
type PageResult struct {
	Index int
	Text  string
	Err   error
}

func (r PageResult) Label() int {
	return r.Index + 1
}

// Banner renders the page as it appears in a transcript.
func (r PageResult) Banner() string {
	if r.Err != nil {
		return fmt.Sprintf("\n=== Page %d ===\nError processing page: %v", r.Label(), r.Err)
	}
	return fmt.Sprintf("\n=== Page %d ===\n%s", r.Label(), r.Text)
}

// BatchResult is the newline-joined text of one batch.
type BatchResult struct {
	Index int
	Start int
	Pages []PageResult
	Text  string
}

// JoinPages builds the batch text from its page results in intra-batch order.
func JoinPages(pages []PageResult) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Banner()
	}
	return strings.Join(parts, "\n")
}

// Transcript is the final text for one input document.
type Transcript struct {
	Text       string        `json:"text"`
	PageCount  int           `json:"page_count"`
	Preview    bool          `json:"preview"`
	PageErrors int           `json:"page_errors"`
	Batches    []BatchResult `json:"-"`
}

func (t *Transcript) String() string {
	if t == nil {
		return ""
	}
	return t.Text
}

// Empty reports whether the transcript covers no pages.
func (t *Transcript) Empty() bool {
	return t == nil || t.PageCount == 0
}
