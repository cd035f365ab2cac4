package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversion statuses
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Export statuses
const (
	ExportWritten    = "written"
	ExportDownloaded = "downloaded"
	ExportDeleted    = "deleted"
)

// ConversionRecord is one document run through the pipeline.
type ConversionRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"index" json:"session_id"`
	Document    string    `json:"document"`
	Pages       int       `json:"pages"`
	DPI         int       `json:"dpi"`
	BatchSize   int       `json:"batch_size"`
	Workers     int       `json:"workers"`
	Status      string    `gorm:"index" json:"status"`
	PageErrors  int       `json:"page_errors"`
	ErrorCode   string    `json:"error_code,omitempty"`
	ErrorDetail string    `gorm:"type:text" json:"error_detail,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a UUID if none is set
func (c *ConversionRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = stamp(c.CreatedAt)
	return nil
}

// ExportRecord is one written export file.
type ExportRecord struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	SessionID    string     `gorm:"index" json:"session_id"`
	Filename     string     `json:"filename"`
	Path         string     `json:"path"`
	Format       string     `json:"format"`
	Size         int64      `json:"size"`
	Status       string     `gorm:"index" json:"status"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// BeforeCreate assigns a UUID if none is set
func (e *ExportRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = ExportWritten
	}
	e.CreatedAt = stamp(e.CreatedAt)
	return nil
}

// stamp keeps stored times in UTC so text comparison in SQLite orders them.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Stats summarizes the conversion history.
type Stats struct {
	Conversions int64 `json:"conversions"`
	Failed      int64 `json:"failed"`
	Pages       int64 `json:"pages"`
	Exports     int64 `json:"exports"`
}
