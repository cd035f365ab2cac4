// Package session holds per-user conversion state between requests.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gmsas95/devocr/internal/export"
)

// DocumentResult is the outcome of converting one uploaded PDF.
type DocumentResult struct {
	Name       string        `json:"name"`
	Pages      int           `json:"pages"`
	Preview    string        `json:"preview,omitempty"`
	Text       string        `json:"text,omitempty"`
	PageErrors int           `json:"page_errors"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// Failed reports whether the document produced no transcript.
func (d DocumentResult) Failed() bool {
	return d.Error != ""
}

// Session is the application state of one browser or CLI run.
type Session struct {
	ID           string           `json:"id"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Converting   bool             `json:"converting"`
	Converted    bool             `json:"converted"`
	Documents    []DocumentResult `json:"documents"`
	ExportFormat export.Format    `json:"export_format,omitempty"`
	LastExport   *export.Record   `json:"last_export,omitempty"`
}

// NewSession returns an empty session with a fresh ID.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reset clears the results of any previous conversion.
func (s *Session) Reset() {
	s.Converted = false
	s.Documents = nil
	s.LastExport = nil
	s.Touch()
}

func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AddDocument appends a document outcome and marks the session converted
// when it carries a transcript.
func (s *Session) AddDocument(d DocumentResult) {
	s.Documents = append(s.Documents, d)
	if !d.Failed() {
		s.Converted = true
	}
	s.Touch()
}

// Transcripts returns the text of every successful document in upload order.
func (s *Session) Transcripts() []string {
	var out []string
	for _, d := range s.Documents {
		if !d.Failed() {
			out = append(out, d.Text)
		}
	}
	return out
}

// CombinedText joins all transcripts with a newline.
func (s *Session) CombinedText() string {
	return strings.Join(s.Transcripts(), "\n")
}

// Names returns the uploaded file names in order.
func (s *Session) Names() []string {
	names := make([]string, len(s.Documents))
	for i, d := range s.Documents {
		names[i] = d.Name
	}
	return names
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Documents != nil {
		c.Documents = append([]DocumentResult(nil), s.Documents...)
	}
	if s.LastExport != nil {
		rec := *s.LastExport
		c.LastExport = &rec
	}
	return &c
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Expired lists the IDs of sessions idle longer than the store TTL.
	Expired(ctx context.Context, now time.Time) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
