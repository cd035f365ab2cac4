package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	s.app.Get("/", s.handleIndex)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/environment", s.handleEnvironment)
	api.Get("/history", s.handleHistory)
	api.Get("/metrics", s.handleMetricsJSON)

	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Post("/sessions/:id/convert", s.rateLimit(), s.handleConvert)
	api.Post("/sessions/:id/export", s.handleExport)

	api.Get("/downloads/:token", s.handleDownload)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/sessions/:id", websocket.New(s.handleProgressSocket))
}

func (s *Server) Start() error {
	s.logger.Info("Web server listening", zap.String("addr", s.config.ListenAddr()))
	return s.app.Listen(s.config.ListenAddr())
}

// Shutdown stops accepting requests, cancels running conversions and waits
// for them to record their state.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.app.ShutdownWithContext(ctx)
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
	return err
}
