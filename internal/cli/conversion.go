package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/batch"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/security"
)

type transcriber interface {
	Transcript(ctx context.Context, up convert.Upload, opts convert.Options, progress batch.Progress) (*document.Transcript, error)
}

type fileExporter interface {
	ExportTo(ctx context.Context, text string, format export.Format, dir, base string) (*export.Record, error)
}

// reporter receives the progress of a terminal conversion.
type reporter interface {
	batch.Progress
	DocumentStarted(name string, index, total int)
	DocumentFinished(name string, t *document.Transcript, elapsed time.Duration, err error)
}

// conversion converts local PDFs and writes one combined export.
type conversion struct {
	svc       transcriber
	exporter  fileExporter
	outputDir string
	maxBytes  int64
	logger    *zap.Logger
}

type conversionRequest struct {
	Paths   []string
	Format  export.Format
	Output  string
	Options convert.Options
}

// conversionResult lists what a run produced. Record is nil when no document
// converted.
type conversionResult struct {
	Record *export.Record
	Failed []string
}

func (c *conversion) run(ctx context.Context, req conversionRequest, rep reporter) (*conversionResult, error) {
	if len(req.Paths) == 0 {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "no PDF files given")
	}

	res := &conversionResult{}
	var texts, names []string
	for i, path := range req.Paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := filepath.Base(path)
		rep.DocumentStarted(name, i, len(req.Paths))
		start := time.Now()

		t, err := c.convertFile(ctx, path, req.Options, rep)
		rep.DocumentFinished(name, t, time.Since(start), err)
		if err != nil {
			c.logger.Error("Conversion failed",
				zap.String("document", name),
				zap.String("code", apperrors.GetCode(err)),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, name)
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		texts = append(texts, t.Text)
		names = append(names, name)
	}

	if len(texts) == 0 {
		return res, apperrors.New(apperrors.ErrNothingToSave.Code, "no document converted")
	}

	base := req.Output
	if base == "" {
		base = export.BaseFilename(names)
	}
	rec, err := c.exporter.ExportTo(ctx, strings.Join(texts, "\n"), req.Format, c.outputDir, base)
	if err != nil {
		return res, err
	}
	res.Record = rec

	if len(res.Failed) > 0 {
		return res, fmt.Errorf("%d of %d documents failed: %s",
			len(res.Failed), len(req.Paths), strings.Join(res.Failed, ", "))
	}
	return res, nil
}

func (c *conversion) convertFile(ctx context.Context, path string, opts convert.Options, rep reporter) (*document.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "cannot read "+path, err)
	}
	if err := security.ValidatePDF(data, c.maxBytes); err != nil {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, filepath.Base(path)+" is not a usable PDF", err)
	}
	return c.svc.Transcript(ctx, convert.Upload{Name: filepath.Base(path), Data: data}, opts, rep)
}

// logReporter writes progress as log lines, for pipes and the watch command.
type logReporter struct {
	logger *zap.Logger
	doc    string
	last   int
}

func newLogReporter(logger *zap.Logger) *logReporter {
	return &logReporter{logger: logger}
}

func (r *logReporter) DocumentStarted(name string, index, total int) {
	r.doc = name
	r.last = -1
	r.logger.Info("Converting document",
		zap.String("document", name),
		zap.Int("index", index+1),
		zap.Int("total", total),
	)
}

// OnProgress logs at most every ten percent.
func (r *logReporter) OnProgress(fraction float64) {
	step := int(fraction * 10)
	if step == r.last {
		return
	}
	r.last = step
	r.logger.Info("Progress", zap.String("document", r.doc), zap.Int("percent", int(fraction*100)))
}

func (r *logReporter) OnStatus(status string) {
	r.logger.Debug(status, zap.String("document", r.doc))
}

func (r *logReporter) DocumentFinished(name string, t *document.Transcript, elapsed time.Duration, err error) {
	if err != nil {
		return
	}
	r.logger.Info("Document converted",
		zap.String("document", name),
		zap.Int("pages", t.PageCount),
		zap.Int("page_errors", t.PageErrors),
		zap.String("elapsed", fmt.Sprintf("%.2f seconds", elapsed.Seconds())),
	)
}
