// Package convert runs uploaded PDFs through rasterization and OCR and
// exports the resulting transcripts.
package convert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/batch"
	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/document"
	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/ocr"
	"github.com/gmsas95/devocr/internal/raster"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
	"github.com/gmsas95/devocr/internal/verify"
)

// Upload is one PDF handed in for conversion.
type Upload struct {
	Name string
	Data []byte
}

// Options are the per-conversion user choices. Zero selects the default.
type Options struct {
	DPI       int
	BatchSize int
}

// Verifier gates conversions on a ready OCR environment.
type Verifier interface {
	Cached(ctx context.Context) *verify.Report
}

// History records conversions and exports; nil disables it.
type History interface {
	RecordConversion(ctx context.Context, rec *store.ConversionRecord) error
	RecordExport(ctx context.Context, rec *store.ExportRecord) error
}

// Deps are the collaborators of a Service.
type Deps struct {
	Rasterizer raster.Rasterizer
	Engine     ocr.Engine
	Verifier   Verifier
	Exporter   *export.Exporter
	Sessions   session.Store
	History    History
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type Service struct {
	cfg      *config.Config
	pipeline batch.Config
	deps     Deps
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]bool
}

func NewService(cfg *config.Config, deps Deps) (*Service, error) {
	pipeline, err := batch.ConfigFrom(cfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "invalid ocr.config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		pipeline: pipeline,
		deps:     deps,
		logger:   logger,
		running:  make(map[string]bool),
	}, nil
}

func (s *Service) Config() *config.Config {
	return s.cfg
}

// Running reports whether a conversion is in progress for the session.
func (s *Service) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[sessionID]
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[sessionID] {
		return false
	}
	s.running[sessionID] = true
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	delete(s.running, sessionID)
	s.mu.Unlock()
}

// Resolve clamps user options to the configured bounds.
func (s *Service) Resolve(opts Options) Options {
	return Options{
		DPI:       s.cfg.Processing.DPI.Clamp(opts.DPI),
		BatchSize: s.cfg.Processing.BatchSize.Clamp(opts.BatchSize),
	}
}

// Convert replaces the session's results with transcripts of uploads.
//
// Documents are converted one after another. A failure in one is recorded
// on its DocumentResult and the next proceeds; only an unready environment,
// a busy session or cancellation fail the call itself.
func (s *Service) Convert(ctx context.Context, sess *session.Session, uploads []Upload, opts Options, obs Observer) error {
	if obs == nil {
		obs = nopObserver{}
	}
	if len(uploads) == 0 {
		return apperrors.New(apperrors.ErrBadRequest.Code, "no PDF files uploaded")
	}
	if !s.acquire(sess.ID) {
		return apperrors.New(apperrors.ErrSessionBusy.Code, apperrors.ErrSessionBusy.Message)
	}
	defer s.release(sess.ID)
	return s.run(ctx, sess, uploads, opts, obs)
}

// Start reserves the session and runs the conversion in the background.
// The reservation is held before Start returns, so a concurrent Start for
// the same session fails with SESSION_002. The channel yields the result of
// the run once and is then closed.
func (s *Service) Start(ctx context.Context, sess *session.Session, uploads []Upload, opts Options, obs Observer) (<-chan error, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	if len(uploads) == 0 {
		return nil, apperrors.New(apperrors.ErrBadRequest.Code, "no PDF files uploaded")
	}
	if !s.acquire(sess.ID) {
		return nil, apperrors.New(apperrors.ErrSessionBusy.Code, apperrors.ErrSessionBusy.Message)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer s.release(sess.ID)
		done <- s.run(ctx, sess, uploads, opts, obs)
	}()
	return done, nil
}

func (s *Service) run(ctx context.Context, sess *session.Session, uploads []Upload, opts Options, obs Observer) error {
	if s.deps.Verifier != nil {
		if report := s.deps.Verifier.Cached(ctx); !report.OK {
			err := report.Err()
			obs.OnEvent(Event{
				Session: sess.ID,
				Phase:   PhaseError,
				Status:  report.Remediation,
				Error:   err.Error(),
				Code:    apperrors.ErrEnvironment.Code,
				Detail:  apperrors.Detail(err),
			})
			return err
		}
	}

	opts = s.Resolve(opts)
	s.deps.Metrics.ConversionStarted()
	defer s.deps.Metrics.ConversionFinished()

	sess.Reset()
	sess.Converting = true
	s.save(ctx, sess)

	s.logger.Info("Conversion started",
		zap.String("session", sess.ID),
		zap.Int("documents", len(uploads)),
		zap.Int("dpi", opts.DPI),
		zap.Int("batch_size", opts.BatchSize),
	)

	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			sess.Converting = false
			s.save(context.WithoutCancel(ctx), sess)
			return err
		}
		result := s.convertDocument(ctx, sess.ID, i, len(uploads), up, opts, obs)
		sess.AddDocument(result)
		s.save(ctx, sess)
	}

	sess.Converting = false
	s.save(context.WithoutCancel(ctx), sess)

	obs.OnEvent(Event{
		Session:  sess.ID,
		Index:    len(uploads) - 1,
		Total:    len(uploads),
		Phase:    PhaseFinished,
		Fraction: 1,
	})
	return ctx.Err()
}

func (s *Service) save(ctx context.Context, sess *session.Session) {
	if s.deps.Sessions == nil {
		return
	}
	if err := s.deps.Sessions.Save(ctx, sess); err != nil {
		s.logger.Error("Failed to save session", zap.String("session", sess.ID), zap.Error(err))
	}
}

// observerProgress forwards pipeline progress as events of one phase.
type observerProgress struct {
	obs      Observer
	base     Event
	fraction float64
}

func (p *observerProgress) OnProgress(fraction float64) {
	p.fraction = fraction
	e := p.base
	e.Fraction = fraction
	p.obs.OnEvent(e)
}

func (p *observerProgress) OnStatus(status string) {
	e := p.base
	e.Status = status
	e.Fraction = p.fraction
	p.obs.OnEvent(e)
}

func (s *Service) convertDocument(ctx context.Context, sessionID string, index, total int, up Upload, opts Options, obs Observer) session.DocumentResult {
	started := time.Now()
	base := Event{Session: sessionID, Document: up.Name, Index: index, Total: total}
	logger := s.logger.With(zap.String("session", sessionID), zap.String("document", up.Name))

	result := session.DocumentResult{Name: up.Name}
	fail := func(err error) session.DocumentResult {
		result.Elapsed = time.Since(started)
		result.Error = fmt.Sprintf("Error processing %s: %v", up.Name, err)
		result.Detail = apperrors.Detail(err)

		e := base
		e.Phase = PhaseError
		e.Error = result.Error
		e.Code = errorCode(err)
		e.Detail = result.Detail
		e.Elapsed = result.Elapsed
		obs.OnEvent(e)

		logger.Error("Document conversion failed", zap.Error(err))
		s.record(ctx, sessionID, result, opts, err)
		return result
	}

	e := base
	e.Phase = PhaseRaster
	e.Status = "Converting PDF to images..."
	obs.OnEvent(e)

	images, err := s.deps.Rasterizer.Rasterize(ctx, up.Data, raster.Options{
		DPI:           opts.DPI,
		Workers:       s.pipeline.Workers,
		ScratchPrefix: s.cfg.Processing.ScratchPrefix,
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.Wrap(err, apperrors.ErrRasterize.Code, apperrors.ErrRasterize.Message)
		}
		return fail(err)
	}
	result.Pages = len(images)

	e = base
	e.Phase = PhaseRaster
	e.Fraction = 1
	e.Pages = len(images)
	e.Status = fmt.Sprintf("Total pages detected: %d", len(images))
	obs.OnEvent(e)

	cfg := s.pipeline
	cfg.MaxBatch = opts.BatchSize
	proc := batch.NewProcessor(s.deps.Engine, cfg, logger, s.deps.Metrics)

	previewBase := base
	previewBase.Phase = PhasePreview
	preview, err := proc.Recognize(ctx, images, proc.PreviewMode(), &observerProgress{obs: obs, base: previewBase})
	if err != nil {
		return fail(err)
	}
	result.Preview = preview.Text

	e = base
	e.Phase = PhasePreview
	e.Fraction = 1
	e.Preview = preview.Text
	e.Pages = len(images)
	obs.OnEvent(e)

	fullBase := base
	fullBase.Phase = PhaseFull
	full, err := proc.Recognize(ctx, images, batch.Full(), &observerProgress{obs: obs, base: fullBase})
	if err != nil {
		return fail(err)
	}

	result.Text = full.Text
	result.PageErrors = full.PageErrors
	result.Elapsed = time.Since(started)

	e = base
	e.Phase = PhaseDone
	e.Fraction = 1
	e.Pages = len(images)
	e.Elapsed = result.Elapsed
	e.Status = fmt.Sprintf("Processing time: %.2f seconds", result.Elapsed.Seconds())
	obs.OnEvent(e)

	logger.Info("Document converted",
		zap.Int("pages", len(images)),
		zap.Int("page_errors", full.PageErrors),
		zap.Duration("elapsed", result.Elapsed),
	)
	s.record(ctx, sessionID, result, opts, nil)
	return result
}

func (s *Service) record(ctx context.Context, sessionID string, result session.DocumentResult, opts Options, err error) {
	if s.deps.History == nil {
		return
	}
	rec := &store.ConversionRecord{
		SessionID:  sessionID,
		Document:   result.Name,
		Pages:      result.Pages,
		DPI:        opts.DPI,
		BatchSize:  opts.BatchSize,
		Workers:    s.pipeline.Workers,
		Status:     store.StatusOK,
		PageErrors: result.PageErrors,
		DurationMs: result.Elapsed.Milliseconds(),
	}
	if err != nil {
		rec.Status = store.StatusFailed
		rec.ErrorCode = errorCode(err)
		rec.ErrorDetail = result.Detail
	}
	if herr := s.deps.History.RecordConversion(context.WithoutCancel(ctx), rec); herr != nil {
		s.logger.Warn("Failed to record conversion", zap.String("session", sessionID), zap.Error(herr))
	}
}

// errorCode prefers the code of a batch failure over the codes it wraps.
func errorCode(err error) string {
	var berr *batch.BatchError
	if apperrors.As(err, &berr) {
		return berr.Code()
	}
	return apperrors.GetCode(err)
}

// Transcript runs a full conversion of one PDF without a session, for the CLI.
func (s *Service) Transcript(ctx context.Context, up Upload, opts Options, progress batch.Progress) (*document.Transcript, error) {
	if s.deps.Verifier != nil {
		if err := s.deps.Verifier.Cached(ctx).Err(); err != nil {
			return nil, err
		}
	}
	opts = s.Resolve(opts)

	images, err := s.deps.Rasterizer.Rasterize(ctx, up.Data, raster.Options{
		DPI:           opts.DPI,
		Workers:       s.pipeline.Workers,
		ScratchPrefix: s.cfg.Processing.ScratchPrefix,
	})
	if err != nil {
		if !apperrors.IsAppError(err) {
			err = apperrors.Wrap(err, apperrors.ErrRasterize.Code, apperrors.ErrRasterize.Message)
		}
		return nil, err
	}

	cfg := s.pipeline
	cfg.MaxBatch = opts.BatchSize
	return batch.NewProcessor(s.deps.Engine, cfg, s.logger.With(zap.String("document", up.Name)), s.deps.Metrics).
		Recognize(ctx, images, batch.Full(), progress)
}
