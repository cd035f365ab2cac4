package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/devocr/internal/api"
	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/janitor"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/ocr"
	"github.com/gmsas95/devocr/internal/raster"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
	"github.com/gmsas95/devocr/internal/verify"
)

// Mode selects which long-lived resources New opens.
type Mode int

const (
	// ModeCLI keeps sessions in memory and skips the history database.
	ModeCLI Mode = iota
	// ModeServer opens the configured session backend and history database.
	ModeServer
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Store    *store.Store
	Sessions session.Store
	Verifier *verify.Verifier
	Exporter *export.Exporter
	Service  *convert.Service
	Version  string
	Mode     Mode
}

// NewLogger returns a JSON production logger or a console development
// logger at the given level.
func NewLogger(production bool, level zapcore.Level) (*zap.Logger, error) {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// New wires every component from cfg.
func New(cfg *config.Config, logger *zap.Logger, version string, mode Mode) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Version: version,
		Mode:    mode,
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if mode == ModeServer {
		a.Store, err = store.New(cfg)
		if err != nil {
			return nil, err
		}
	}

	a.Sessions, err = openSessions(cfg, mode)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := ocr.New(cfg.OCR, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	rasterizer, err := raster.New(cfg.Processing, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Verifier = verify.New(cfg.OCR, logger)
	a.Exporter = export.New(cfg.Export, logger, a.Metrics)

	deps := convert.Deps{
		Rasterizer: rasterizer,
		Engine:     engine,
		Verifier:   a.Verifier,
		Exporter:   a.Exporter,
		Sessions:   a.Sessions,
		Logger:     logger,
		Metrics:    a.Metrics,
	}
	if a.Store != nil {
		deps.History = a.Store
	}
	a.Service, err = convert.NewService(cfg, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Debug("Components ready",
		zap.String("engine", engine.Name()),
		zap.String("rasterizer", rasterizer.Name()),
		zap.Int("workers", cfg.Processing.WorkerCount()),
	)
	return a, nil
}

func openSessions(cfg *config.Config, mode Mode) (session.Store, error) {
	ttl := cfg.Session.TTL()
	if mode == ModeCLI {
		return session.NewMemoryStore(ttl), nil
	}
	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(ttl), nil
	case "", "badger":
		return session.OpenBadger(cfg.Storage.BadgerPath, ttl)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// RunServer serves the web UI and API until ctx is canceled, with the
// janitor sweeping in the background.
func (a *App) RunServer(ctx context.Context) error {
	if a.Mode != ModeServer {
		return errors.New("app was not built for server mode")
	}

	report := a.Verifier.Check(ctx)
	if !report.OK {
		a.Logger.Warn("OCR environment not ready, conversions will be refused",
			zap.Strings("problems", report.Problems),
			zap.String("remediation", report.Remediation),
		)
	} else {
		a.Logger.Info("OCR environment ready",
			zap.String("engine_version", report.EngineVersion),
			zap.String("tessdata", report.TessdataDir),
		)
	}

	api.Version = a.Version
	server := api.New(a.Config, api.Deps{
		Service:     a.Service,
		Sessions:    a.Sessions,
		Environment: a.Verifier,
		History:     a.Store,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})

	j := janitor.New(a.Config, a.Sessions, a.Store, a.Logger, a.Metrics)
	if err := j.Start(); err != nil {
		return err
	}
	defer j.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	a.Logger.Info("Server started",
		zap.String("address", a.Config.Server.Address),
		zap.Int("port", a.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down...")
	if err := server.Shutdown(); err != nil {
		a.Logger.Error("Server shutdown error", zap.Error(err))
		return err
	}
	return nil
}

// Close releases the stores and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Sessions != nil {
		errs = append(errs, a.Sessions.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
