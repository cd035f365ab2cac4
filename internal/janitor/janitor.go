// Package janitor periodically removes expired sessions and export files
// that were never downloaded.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/security"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
)

// ExportHistory is the part of the history store the janitor needs.
type ExportHistory interface {
	StaleExports(ctx context.Context, cutoff time.Time) ([]store.ExportRecord, error)
	MarkExportDeleted(ctx context.Context, id string) error
}

// Result counts what one sweep removed.
type Result struct {
	Sessions  int
	Exports   int
	TempFiles int
}

type gcer interface {
	GC() error
}

// Janitor runs the cleanup sweep on a cron schedule.
type Janitor struct {
	schedule  string
	maxAge    time.Duration
	outputDir string
	sessions  session.Store
	history   ExportHistory
	logger    *zap.Logger
	metrics   *metrics.Metrics

	now     func() time.Time
	cron    *cron.Cron
	running bool
	mu      sync.Mutex
}

// New creates a Janitor. history may be nil.
func New(cfg *config.Config, sessions session.Store, history ExportHistory, logger *zap.Logger, m *metrics.Metrics) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := cfg.Janitor.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	maxAge := time.Duration(cfg.Janitor.ExportMaxAgeMins) * time.Minute
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Janitor{
		schedule:  schedule,
		maxAge:    maxAge,
		outputDir: cfg.Output.Dir,
		sessions:  sessions,
		history:   history,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Start schedules the sweep. It fails on an invalid schedule.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	c.Start()
	j.cron = c
	j.running = true
	j.logger.Info("Janitor started", zap.String("schedule", j.schedule), zap.Duration("export_max_age", j.maxAge))
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	c := j.cron
	j.mu.Unlock()

	<-c.Stop().Done()
	j.logger.Info("Janitor stopped")
}

func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// RunOnce performs one sweep immediately.
func (j *Janitor) RunOnce(ctx context.Context) Result {
	now := j.now()
	var res Result

	res.Sessions = j.sweepSessions(ctx, now)
	res.Exports = j.sweepExports(ctx, now)
	res.TempFiles = j.sweepTempFiles(now)

	if j.sessions != nil {
		if n, err := j.sessions.Count(ctx); err == nil {
			j.metrics.SetActiveSessions(n)
		}
	}

	if res.Sessions+res.Exports+res.TempFiles > 0 {
		j.logger.Info("Janitor sweep complete",
			zap.Int("sessions", res.Sessions),
			zap.Int("exports", res.Exports),
			zap.Int("temp_files", res.TempFiles),
		)
	}
	return res
}

func (j *Janitor) sweepSessions(ctx context.Context, now time.Time) int {
	if j.sessions == nil {
		return 0
	}
	ids, err := j.sessions.Expired(ctx, now)
	if err != nil {
		j.logger.Error("Failed to list expired sessions", zap.Error(err))
		return 0
	}

	removed := 0
	for _, id := range ids {
		if err := j.sessions.Delete(ctx, id); err != nil {
			j.logger.Warn("Failed to delete session", zap.String("session", id), zap.Error(err))
			continue
		}
		removed++
	}

	if g, ok := j.sessions.(gcer); ok {
		if err := g.GC(); err != nil {
			j.logger.Warn("Session store GC failed", zap.Error(err))
		}
	}
	return removed
}

func (j *Janitor) sweepExports(ctx context.Context, now time.Time) int {
	if j.history == nil {
		return 0
	}
	recs, err := j.history.StaleExports(ctx, now.Add(-j.maxAge))
	if err != nil {
		j.logger.Error("Failed to list stale exports", zap.Error(err))
		return 0
	}

	removed := 0
	for _, rec := range recs {
		path, err := security.ResolveWithin(j.outputDir, rec.Path)
		if err != nil {
			j.logger.Warn("Export outside output directory, leaving it", zap.String("path", rec.Path), zap.Error(err))
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("Failed to remove export", zap.String("path", path), zap.Error(err))
			continue
		}
		if err := j.history.MarkExportDeleted(ctx, rec.ID); err != nil {
			j.logger.Warn("Failed to mark export deleted", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

// sweepTempFiles removes partial writes left by interrupted exports.
func (j *Janitor) sweepTempFiles(now time.Time) int {
	if j.outputDir == "" {
		return 0
	}
	entries, err := os.ReadDir(j.outputDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), export.TempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < j.maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(j.outputDir, e.Name())); err == nil {
			removed++
		}
	}
	return removed
}
