package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/devocr/internal/config"
	apperrors "github.com/gmsas95/devocr/internal/errors"
)

// Store is the conversion and export history kept in SQLite.
type Store struct {
	db *gorm.DB
}

// New opens the history database configured in cfg.
func New(cfg *config.Config) (*Store, error) {
	path := cfg.Storage.SQLitePath
	if path == "" {
		path = filepath.Join(cfg.Storage.DataDir, "devocr.db")
	}
	return Open(path)
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqliteDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(4)
	sqliteDB.SetMaxIdleConns(2)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&ConversionRecord{}, &ExportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ==================== Conversion Methods ====================

func (s *Store) RecordConversion(ctx context.Context, rec *ConversionRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// RecentConversions lists the newest conversions first.
func (s *Store) RecentConversions(ctx context.Context, limit int) ([]ConversionRecord, error) {
	var recs []ConversionRecord
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// SessionConversions lists a session's conversions in the order they ran.
func (s *Store) SessionConversions(ctx context.Context, sessionID string) ([]ConversionRecord, error) {
	var recs []ConversionRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)

	if err := db.Model(&ConversionRecord{}).Count(&st.Conversions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&ConversionRecord{}).Where("status = ?", StatusFailed).Count(&st.Failed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&ConversionRecord{}).Select("COALESCE(SUM(pages), 0)").Scan(&st.Pages).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&ExportRecord{}).Count(&st.Exports).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// ==================== Export Methods ====================

func (s *Store) RecordExport(ctx context.Context, rec *ExportRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) GetExport(ctx context.Context, id string) (*ExportRecord, error) {
	var rec ExportRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.ErrNotFound.Code, "export "+id+" not found")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) MarkExportDownloaded(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&ExportRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": ExportDownloaded, "downloaded_at": now}).Error
}

func (s *Store) MarkExportDeleted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&ExportRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": ExportDeleted, "deleted_at": now}).Error
}

// StaleExports lists files written before cutoff that are still on disk.
func (s *Store) StaleExports(ctx context.Context, cutoff time.Time) ([]ExportRecord, error) {
	var recs []ExportRecord
	err := s.db.WithContext(ctx).
		Where("status <> ? AND created_at < ?", ExportDeleted, cutoff.UTC()).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}
