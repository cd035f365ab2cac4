package document

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageResult_Banner(t *testing.T) {
	ok := PageResult{Index: 0, Text: "नमस्ते"}
	assert.Equal(t, "\n=== Page 1 ===\nनमस्ते", ok.Banner())

	failed := PageResult{Index: 3, Err: fmt.Errorf("engine crashed")}
	assert.Equal(t, "\n=== Page 4 ===\nError processing page: engine crashed", failed.Banner())
}

func TestJoinPages(t *testing.T) {
	pages := []PageResult{
		{Index: 4, Text: "a"},
		{Index: 5, Text: "b"},
	}
	assert.Equal(t, "\n=== Page 5 ===\na\n\n=== Page 6 ===\nb", JoinPages(pages))
	assert.Equal(t, "", JoinPages(nil))
}

func TestTranscript_Empty(t *testing.T) {
	var nilTranscript *Transcript
	assert.True(t, nilTranscript.Empty())
	assert.Equal(t, "", nilTranscript.String())

	tr := &Transcript{Text: "x", PageCount: 1}
	assert.False(t, tr.Empty())
	assert.Equal(t, "x", tr.String())
}

func TestPageImage_Label(t *testing.T) {
	assert.Equal(t, 1, PageImage{Index: 0}.Label())
	assert.Equal(t, 10, PageImage{Index: 9}.Label())
}
