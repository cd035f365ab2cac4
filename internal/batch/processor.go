// Package batch runs OCR over a document's pages on a bounded worker pool and
// assembles the results in page order.
package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/document"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/ocr"
)

const (
	DefaultMaxBatch     = 10
	DefaultPreviewPages = 3
)

// Mode selects between a full pass and a preview of the leading pages.
type Mode struct {
	preview bool
	pages   int
}

func Full() Mode {
	return Mode{}
}

// Preview limits processing to the first pages of the document.
func Preview(pages int) Mode {
	if pages < 1 {
		pages = DefaultPreviewPages
	}
	return Mode{preview: true, pages: pages}
}

func (m Mode) IsPreview() bool { return m.preview }

// Pages is the preview limit; zero for a full pass.
func (m Mode) Pages() int { return m.pages }

func (m Mode) String() string {
	if m.preview {
		return "preview"
	}
	return "full"
}

func (m Mode) statusLabel() string {
	if m.preview {
		return "Preview"
	}
	return "Processing"
}

func (m Mode) startStatus() string {
	if m.preview {
		return "Generating preview..."
	}
	return "Processing full document..."
}

// PreviewNotice is appended to preview transcripts. pages is the configured
// preview limit, so a document shorter than the limit still names the limit.
func PreviewNotice(pages int) string {
	return fmt.Sprintf("\n\n... Preview limited to first %d pages ...", pages)
}

type Config struct {
	Workers      int
	MaxBatch     int
	PreviewPages int
	Settings     ocr.Settings
}

func DefaultConfig() Config {
	return Config{
		Workers:      config.DefaultWorkers(),
		MaxBatch:     DefaultMaxBatch,
		PreviewPages: DefaultPreviewPages,
		Settings:     ocr.DefaultSettings(),
	}
}

// ConfigFrom derives pipeline settings from the application config.
func ConfigFrom(cfg *config.Config) (Config, error) {
	settings, err := ocr.ParseSettings(cfg.OCR.Config)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Workers:      cfg.Processing.WorkerCount(),
		MaxBatch:     cfg.Processing.BatchSize.Default,
		PreviewPages: cfg.Processing.PreviewPages,
		Settings:     settings,
	}, nil
}

// BatchSize returns min(maxBatch, max(1, n/workers)) bounded to [1, n].
func BatchSize(n, workers, maxBatch int) int {
	if n < 1 {
		return 0
	}
	if workers < 1 {
		workers = 1
	}
	if maxBatch < 1 {
		maxBatch = DefaultMaxBatch
	}

	size := n / workers
	if size < 1 {
		size = 1
	}
	if size > maxBatch {
		size = maxBatch
	}
	if size > n {
		size = n
	}
	return size
}

// Partition splits images into contiguous batches of size pages; the last
// batch may be shorter.
func Partition(images []document.PageImage, size int) []document.Batch {
	if len(images) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([]document.Batch, 0, (len(images)+size-1)/size)
	for start := 0; start < len(images); start += size {
		end := start + size
		if end > len(images) {
			end = len(images)
		}
		batches = append(batches, document.Batch{
			Index: len(batches),
			Start: start,
			Pages: images[start:end],
		})
	}
	return batches
}

type Processor struct {
	engine  ocr.Engine
	config  Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewProcessor(engine ocr.Engine, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkers()
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.PreviewPages <= 0 {
		cfg.PreviewPages = DefaultPreviewPages
	}
	if len(cfg.Settings.Languages) == 0 {
		cfg.Settings = ocr.DefaultSettings()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		engine:  engine,
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

func (p *Processor) Config() Config {
	return p.config
}

// PreviewMode is Preview with the configured page limit.
func (p *Processor) PreviewMode() Mode {
	return Preview(p.config.PreviewPages)
}

// Recognize OCRs images and returns the transcript in page order.
//
// Per-page engine errors are written into that page's banner. A panic inside
// a batch, or cancellation of ctx, aborts the document with a *BatchError and
// no transcript.
func (p *Processor) Recognize(ctx context.Context, images []document.PageImage, mode Mode, progress Progress) (*document.Transcript, error) {
	if progress == nil {
		progress = nopProgress{}
	}
	if len(images) == 0 {
		return &document.Transcript{Preview: mode.IsPreview()}, nil
	}

	progress.OnStatus(mode.startStatus())
	if mode.IsPreview() && mode.Pages() < len(images) {
		images = images[:mode.Pages()]
	}

	total := len(images)
	size := BatchSize(total, p.config.Workers, p.config.MaxBatch)
	batches := Partition(images, size)

	p.logger.Info("Starting OCR pass",
		zap.String("mode", mode.String()),
		zap.Int("pages", total),
		zap.Int("workers", p.config.Workers),
		zap.Int("batch_size", size),
		zap.Int("batches", len(batches)),
	)

	started := time.Now()
	var processed atomic.Int64

	pool := NewPool(ctx, p.config.Workers, len(batches))
	defer pool.Close()

	for _, b := range batches {
		b := b
		pool.Submit(b.Index, func(ctx context.Context) (document.BatchResult, error) {
			result, err := p.processBatch(ctx, b)
			if err == nil {
				processed.Add(int64(b.Len()))
			}
			return result, err
		})
	}

	results := make(map[int]document.BatchResult, len(batches))
	for range batches {
		task := <-pool.Completed()
		if task.Err != nil {
			pool.Cancel()
			berr := &BatchError{Batch: task.ID, Start: batches[task.ID].Start, Err: task.Err}
			p.logger.Error("Batch failed, aborting document",
				zap.Int("batch", berr.Batch),
				zap.Int("start", berr.Start),
				zap.Error(task.Err),
			)
			p.metrics.RecordDocument(mode.String(), time.Since(started), berr)
			return nil, berr
		}

		results[task.Result.Start] = task.Result

		done := processed.Load()
		fraction := float64(done) / float64(total)
		if fraction > 1.0 {
			fraction = 1.0
		}
		progress.OnProgress(fraction)
		progress.OnStatus(fmt.Sprintf("%s: %d/%d pages", mode.statusLabel(), done, total))
	}

	transcript := assemble(results, total, mode)
	p.metrics.RecordDocument(mode.String(), time.Since(started), nil)
	p.logger.Info("OCR pass complete",
		zap.String("mode", mode.String()),
		zap.Int("pages", total),
		zap.Int("page_errors", transcript.PageErrors),
		zap.Duration("elapsed", time.Since(started)),
	)
	return transcript, nil
}

// processBatch OCRs the batch's pages one after another.
func (p *Processor) processBatch(ctx context.Context, b document.Batch) (document.BatchResult, error) {
	started := time.Now()
	pages := make([]document.PageResult, 0, b.Len())

	for _, img := range b.Pages {
		if err := ctx.Err(); err != nil {
			p.metrics.RecordBatch(time.Since(started), err)
			return document.BatchResult{}, err
		}

		pageStart := time.Now()
		text, err := p.engine.Recognize(ctx, img, p.config.Settings)
		if err != nil && ctx.Err() != nil {
			p.metrics.RecordBatch(time.Since(started), ctx.Err())
			return document.BatchResult{}, ctx.Err()
		}
		p.metrics.RecordPage(time.Since(pageStart), err)

		if err != nil {
			p.logger.Warn("Page recognition failed",
				zap.Int("page", img.Label()),
				zap.Int("batch", b.Index),
				zap.Error(err),
			)
		}
		pages = append(pages, document.PageResult{Index: img.Index, Text: text, Err: err})
	}

	p.metrics.RecordBatch(time.Since(started), nil)
	return document.BatchResult{
		Index: b.Index,
		Start: b.Start,
		Pages: pages,
		Text:  document.JoinPages(pages),
	}, nil
}

func assemble(results map[int]document.BatchResult, total int, mode Mode) *document.Transcript {
	starts := make([]int, 0, len(results))
	for start := range results {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	t := &document.Transcript{
		PageCount: total,
		Preview:   mode.IsPreview(),
		Batches:   make([]document.BatchResult, 0, len(starts)),
	}

	parts := make([]string, 0, len(starts))
	for _, start := range starts {
		r := results[start]
		t.Batches = append(t.Batches, r)
		parts = append(parts, r.Text)
		for _, page := range r.Pages {
			if page.Err != nil {
				t.PageErrors++
			}
		}
	}

	t.Text = strings.Join(parts, "\n")
	if mode.IsPreview() {
		t.Text += PreviewNotice(mode.Pages())
	}
	return t
}
