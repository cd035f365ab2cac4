package api

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/convert"
	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/security"
	"github.com/gmsas95/devocr/internal/session"
)

func badRequest(msg string, cause error) error {
	return apperrors.New(apperrors.ErrBadRequest.Code, msg, cause)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   Version,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

func (s *Server) handleEnvironment(c *fiber.Ctx) error {
	if s.env == nil {
		return writeError(c, apperrors.New(apperrors.ErrInternal.Code, "environment checker not configured"))
	}

	report := s.env.Cached(c.UserContext())
	if c.QueryBool("refresh") {
		report = s.env.Check(c.UserContext())
	}

	status := fiber.StatusOK
	if !report.OK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return c.JSON(fiber.Map{"conversions": []any{}})
	}
	ctx := c.UserContext()
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 200 {
		limit = 20
	}

	recs, err := s.history.RecentConversions(ctx, limit)
	if err != nil {
		return err
	}
	stats, err := s.history.Stats(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversions": recs, "stats": stats})
}

// sessionView is a session plus live state.
type sessionView struct {
	*session.Session
	Running bool `json:"running"`
}

func (s *Server) view(sess *session.Session) sessionView {
	return sessionView{Session: sess, Running: s.svc.Running(sess.ID)}
}

func (s *Server) loadSession(c *fiber.Ctx) (*session.Session, error) {
	return s.sessions.Get(c.UserContext(), c.Params("id"))
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess, err := s.sessions.Create(c.UserContext())
	if err != nil {
		return err
	}
	sess.ExportFormat = export.Format(s.config.Output.DefaultFormat)
	if err := s.sessions.Save(c.UserContext(), sess); err != nil {
		return err
	}
	s.updateSessionGauge(c.UserContext())

	s.logger.Info("Session created", zap.String("session", sess.ID))
	return c.Status(fiber.StatusCreated).JSON(s.view(sess))
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.loadSession(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s.view(sess))
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.svc.Running(id) {
		return writeError(c, apperrors.New(apperrors.ErrSessionBusy.Code, apperrors.ErrSessionBusy.Message))
	}
	if err := s.sessions.Delete(c.UserContext(), id); err != nil {
		return err
	}
	s.hub.Forget(id)
	s.updateSessionGauge(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) updateSessionGauge(ctx context.Context) {
	if n, err := s.sessions.Count(ctx); err == nil {
		s.metrics.SetActiveSessions(n)
	}
}

func formInt(c *fiber.Ctx, key string) (int, error) {
	raw := c.FormValue(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("%s must be an integer", key), err)
	}
	return v, nil
}

// readUploads loads and validates every uploaded PDF.
func (s *Server) readUploads(c *fiber.Ctx) ([]convert.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, badRequest("expected a multipart form with PDF files", err)
	}

	files := append(form.File["files"], form.File["files[]"]...)
	if len(files) == 0 {
		return nil, badRequest("no PDF files uploaded", nil)
	}

	maxBytes := int64(s.config.Server.BodyLimitMB) * 1024 * 1024
	uploads := make([]convert.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, badRequest("cannot read "+fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, badRequest("cannot read "+fh.Filename, err)
		}
		if err := security.ValidatePDF(data, maxBytes); err != nil {
			return nil, badRequest(fh.Filename+" is not a usable PDF", err)
		}
		uploads = append(uploads, convert.Upload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

func (s *Server) handleConvert(c *fiber.Ctx) error {
	sess, err := s.loadSession(c)
	if err != nil {
		return writeError(c, err)
	}
	if s.svc.Running(sess.ID) {
		return writeError(c, apperrors.New(apperrors.ErrSessionBusy.Code, apperrors.ErrSessionBusy.Message))
	}

	uploads, err := s.readUploads(c)
	if err != nil {
		return writeError(c, err)
	}
	dpi, err := formInt(c, "dpi")
	if err != nil {
		return writeError(c, err)
	}
	batchSize, err := formInt(c, "batch_size")
	if err != nil {
		return writeError(c, err)
	}
	opts := s.svc.Resolve(convert.Options{DPI: dpi, BatchSize: batchSize})

	names := make([]string, len(uploads))
	for i, u := range uploads {
		names[i] = u.Name
	}

	done, err := s.svc.Start(s.ctx, sess, uploads, opts, s.hub.Observer())
	if err != nil {
		return writeError(c, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := <-done; err != nil {
			s.logger.Warn("Conversion did not complete", zap.String("session", sess.ID), zap.Error(err))
			if !apperrors.Is(err, apperrors.ErrEnvironment) {
				s.hub.Publish(convert.Event{
					Session: sess.ID,
					Phase:   convert.PhaseError,
					Error:   err.Error(),
					Code:    apperrors.GetCode(err),
					Detail:  apperrors.Detail(err),
				})
			}
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session":    sess.ID,
		"documents":  names,
		"dpi":        opts.DPI,
		"batch_size": opts.BatchSize,
		"events":     "/ws/sessions/" + sess.ID,
	})
}

type exportRequest struct {
	Format   string `json:"format"`
	Filename string `json:"filename"`
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	sess, err := s.loadSession(c)
	if err != nil {
		return writeError(c, err)
	}
	if s.svc.Running(sess.ID) {
		return writeError(c, apperrors.New(apperrors.ErrSessionBusy.Code, apperrors.ErrSessionBusy.Message))
	}

	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, badRequest("invalid request", err))
	}
	if req.Format == "" {
		req.Format = s.config.Output.DefaultFormat
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return writeError(c, badRequest(err.Error(), nil))
	}

	rec, err := s.svc.Export(c.UserContext(), sess, format, req.Filename)
	if err != nil {
		return writeError(c, err)
	}

	token, expires, err := s.tokens.Issue(sess.ID, rec)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"filename":     rec.Filename,
		"format":       rec.Format,
		"size":         rec.Size,
		"download_url": "/api/downloads/" + token,
		"expires_at":   expires,
	})
}

// handleDownload sends the exported file once and removes it.
func (s *Server) handleDownload(c *fiber.Ctx) error {
	claims, err := s.tokens.Parse(c.Params("token"))
	if err != nil {
		return writeError(c, err)
	}

	path, err := security.ResolveWithin(s.config.Output.Dir, claims.Filename)
	if err != nil {
		return writeError(c, apperrors.New(apperrors.ErrUnauthorized.Code, "invalid download link", err))
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return writeError(c, apperrors.New(apperrors.ErrNotFound.Code, "file already downloaded or expired"))
	}
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		s.logger.Warn("Failed to remove downloaded export", zap.String("path", path), zap.Error(err))
	}
	if s.history != nil && claims.ExportID != "" {
		ctx := c.UserContext()
		if err := s.history.MarkExportDownloaded(ctx, claims.ExportID); err != nil {
			s.logger.Warn("Failed to mark export downloaded", zap.String("id", claims.ExportID), zap.Error(err))
		}
		if err := s.history.MarkExportDeleted(ctx, claims.ExportID); err != nil {
			s.logger.Warn("Failed to mark export deleted", zap.String("id", claims.ExportID), zap.Error(err))
		}
	}

	format, err := export.ParseFormat(claims.Format)
	if err != nil {
		format = export.Format("")
	}
	c.Set(fiber.HeaderContentType, format.MIMEType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(claims.Filename)))
	return c.Send(data)
}

func (s *Server) handleProgressSocket(c *websocket.Conn) {
	events, unsubscribe := s.hub.Subscribe(c.Params("id"))
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(e); err != nil {
				s.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		}
	}
}
