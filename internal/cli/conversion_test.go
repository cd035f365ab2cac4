package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/batch"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
)

type fakeTranscriber struct {
	opts []convert.Options
}

func (f *fakeTranscriber) Transcript(ctx context.Context, up convert.Upload, opts convert.Options, progress batch.Progress) (*document.Transcript, error) {
	f.opts = append(f.opts, opts)
	if up.Name == "broken.pdf" {
		return nil, apperrors.Wrap(errors.New("syntax error"), apperrors.ErrRasterize.Code, apperrors.ErrRasterize.Message)
	}
	progress.OnStatus("Processing full document...")
	progress.OnProgress(0.5)
	progress.OnProgress(1)
	return &document.Transcript{Text: "\n=== Page 1 ===\n" + up.Name, PageCount: 1}, nil
}

type recordingReporter struct {
	started  []string
	finished []string
	failed   []string
	last     float64
}

func (r *recordingReporter) OnProgress(f float64) { r.last = f }
func (r *recordingReporter) OnStatus(string)      {}
func (r *recordingReporter) DocumentStarted(name string, index, total int) {
	r.started = append(r.started, name)
}
func (r *recordingReporter) DocumentFinished(name string, t *document.Transcript, elapsed time.Duration, err error) {
	if err != nil {
		r.failed = append(r.failed, name)
		return
	}
	r.finished = append(r.finished, name)
}

func writePDF(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func newTestConversion(t *testing.T) (*conversion, *fakeTranscriber, string) {
	t.Helper()
	out := t.TempDir()
	tr := &fakeTranscriber{}
	return &conversion{
		svc:       tr,
		exporter:  export.NewWithRenderer(nil, zap.NewNop(), nil),
		outputDir: out,
		maxBytes:  1 << 20,
		logger:    zap.NewNop(),
	}, tr, out
}

func TestConversion_CombinesDocuments(t *testing.T) {
	c, tr, out := newTestConversion(t)
	in := t.TempDir()
	a := writePDF(t, in, "a.pdf", "%PDF-1.4 a")
	b := writePDF(t, in, "b.pdf", "%PDF-1.4 b")

	rep := &recordingReporter{}
	res, err := c.run(context.Background(), conversionRequest{
		Paths:   []string{a, b},
		Format:  export.FormatTXT,
		Options: convert.Options{DPI: 250, BatchSize: 20},
	}, rep)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "combined_a_b.txt"), res.Record.Path)
	data, err := os.ReadFile(res.Record.Path)
	require.NoError(t, err)
	assert.Equal(t, "\n=== Page 1 ===\na.pdf\n\n=== Page 1 ===\nb.pdf", string(data))

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, rep.started)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, rep.finished)
	assert.Equal(t, 1.0, rep.last)
	assert.Equal(t, convert.Options{DPI: 250, BatchSize: 20}, tr.opts[0])
}

func TestConversion_ExplicitName(t *testing.T) {
	c, _, out := newTestConversion(t)
	path := writePDF(t, t.TempDir(), "scan.pdf", "%PDF-1.7")

	res, err := c.run(context.Background(), conversionRequest{
		Paths: []string{path}, Format: export.FormatHTML, Output: "मेरा लेख",
	}, &recordingReporter{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "मेरा लेख.html"), res.Record.Path)
}

func TestConversion_PartialFailure(t *testing.T) {
	c, _, _ := newTestConversion(t)
	in := t.TempDir()
	good := writePDF(t, in, "good.pdf", "%PDF-1.4")
	broken := writePDF(t, in, "broken.pdf", "%PDF-1.4")
	notPDF := writePDF(t, in, "notes.pdf", "plain text")

	rep := &recordingReporter{}
	res, err := c.run(context.Background(), conversionRequest{
		Paths: []string{good, broken, notPDF}, Format: export.FormatTXT,
	}, rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 documents failed: broken.pdf, notes.pdf")
	require.NotNil(t, res.Record)
	assert.Equal(t, "good.txt", res.Record.Filename)
	assert.Equal(t, []string{"broken.pdf", "notes.pdf"}, rep.failed)
}

func TestConversion_NothingConverted(t *testing.T) {
	c, _, out := newTestConversion(t)
	broken := writePDF(t, t.TempDir(), "broken.pdf", "%PDF-1.4")

	res, err := c.run(context.Background(), conversionRequest{Paths: []string{broken}, Format: export.FormatTXT}, &recordingReporter{})
	assert.True(t, apperrors.Is(err, apperrors.ErrNothingToSave))
	assert.Nil(t, res.Record)

	entries, _ := os.ReadDir(out)
	assert.Empty(t, entries)
}

func TestConversion_MissingFile(t *testing.T) {
	c, _, _ := newTestConversion(t)
	rep := &recordingReporter{}
	_, err := c.run(context.Background(), conversionRequest{
		Paths: []string{filepath.Join(t.TempDir(), "absent.pdf")}, Format: export.FormatTXT,
	}, rep)
	require.Error(t, err)
	assert.Equal(t, []string{"absent.pdf"}, rep.failed)
}

func TestConversion_Canceled(t *testing.T) {
	c, tr, _ := newTestConversion(t)
	path := writePDF(t, t.TempDir(), "a.pdf", "%PDF-1.4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.run(ctx, conversionRequest{Paths: []string{path}, Format: export.FormatTXT}, &recordingReporter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.opts)
}

func TestLogReporter_Throttles(t *testing.T) {
	r := newLogReporter(zap.NewNop())
	r.DocumentStarted("a.pdf", 0, 1)
	r.OnProgress(0.01)
	r.OnProgress(0.05)
	assert.Equal(t, 0, r.last)
	r.OnProgress(0.35)
	assert.Equal(t, 3, r.last)
	r.OnProgress(1)
	assert.Equal(t, 10, r.last)
}
