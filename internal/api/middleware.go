package api

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/gmsas95/devocr/internal/errors"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

var statusByCode = map[string]int{
	apperrors.ErrNotFound.Code:        fiber.StatusNotFound,
	apperrors.ErrSessionNotFound.Code: fiber.StatusNotFound,
	apperrors.ErrBadRequest.Code:      fiber.StatusBadRequest,
	apperrors.ErrNothingToSave.Code:   fiber.StatusBadRequest,
	apperrors.ErrSessionBusy.Code:     fiber.StatusConflict,
	apperrors.ErrUnauthorized.Code:    fiber.StatusUnauthorized,
	apperrors.ErrEnvironment.Code:     fiber.StatusServiceUnavailable,
}

// writeError renders err as {"error", "code", "detail"}.
func writeError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody{Error: fe.Message, Code: codeForStatus(fe.Code)})
	}

	code := apperrors.GetCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	msg := err.Error()
	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		msg = appErr.Message
	}
	return c.Status(status).JSON(errorBody{
		Error:  msg,
		Code:   code,
		Detail: apperrors.Detail(err),
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return apperrors.ErrNotFound.Code
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUpgradeRequired:
		return apperrors.ErrBadRequest.Code
	case fiber.StatusUnauthorized:
		return apperrors.ErrUnauthorized.Code
	case fiber.StatusTooManyRequests:
		return "RATE_001"
	}
	return apperrors.ErrInternal.Code
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return writeError(c, err)
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := s.errorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		s.metrics.RecordRequest(c.Method(), status)
		s.logger.Debug("HTTP request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}
}

// ipLimiter hands out one token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ipLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.limiter.allow(c.IP()) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many conversion requests, slow down")
		}
		return c.Next()
	}
}
