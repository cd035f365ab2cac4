package api

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/convert"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
	"github.com/gmsas95/devocr/internal/verify"
)

// Version is reported by /api/health; set by the build.
var Version = "dev"

// EnvironmentChecker reports OCR environment readiness.
type EnvironmentChecker interface {
	Check(ctx context.Context) *verify.Report
	Cached(ctx context.Context) *verify.Report
}

// History is the read side of the conversion history plus download bookkeeping.
type History interface {
	RecentConversions(ctx context.Context, limit int) ([]store.ConversionRecord, error)
	Stats(ctx context.Context) (*store.Stats, error)
	MarkExportDownloaded(ctx context.Context, id string) error
	MarkExportDeleted(ctx context.Context, id string) error
}

// Deps are the collaborators of the HTTP server. History may be nil.
type Deps struct {
	Service     *convert.Service
	Sessions    session.Store
	Environment EnvironmentChecker
	History     History
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

type Server struct {
	app      *fiber.App
	config   *config.Config
	svc      *convert.Service
	sessions session.Store
	env      EnvironmentChecker
	history  History
	hub      *Hub
	tokens   *TokenIssuer
	limiter  *ipLimiter
	logger   *zap.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		config:   cfg,
		svc:      deps.Service,
		sessions: deps.Sessions,
		env:      deps.Environment,
		history:  deps.History,
		hub:      NewHub(),
		tokens:   NewTokenIssuer(cfg.Security.DownloadSecret, cfg.Security.DownloadTTL()),
		limiter:  newIPLimiter(cfg.Server.ConvertRPS, cfg.Server.ConvertBurst),
		logger:   logger,
		metrics:  m,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.app = fiber.New(fiber.Config{
		AppName:               "devocr",
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub exposes the progress hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
