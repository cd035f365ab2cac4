package export

import (
	"bytes"
	"fmt"

	"github.com/fumiama/go-docx"
)

const devanagariFont = "Noto Sans Devanagari"

// DOCX builds a Word document holding text as a single paragraph. Newlines
// become line breaks and tabs become tab stops inside one run.
func DOCX(text string) ([]byte, error) {
	doc := docx.New().WithDefaultTheme()

	run := doc.AddParagraph().AddText(text)
	run.Font(devanagariFont, devanagariFont, devanagariFont, "")
	for _, child := range run.Children {
		if t, ok := child.(*docx.Text); ok {
			t.XMLSpace = "preserve"
		}
	}
	// sectPr must follow the paragraph
	doc.WithA4Page()

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("docx: write package: %w", err)
	}
	return buf.Bytes(), nil
}
