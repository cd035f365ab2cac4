package convert

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
)

// Export writes all of the session's transcripts, joined by a newline, to a
// uniquely named file in the output directory. An empty filename derives
// one from the uploaded documents.
func (s *Service) Export(ctx context.Context, sess *session.Session, format export.Format, filename string) (*export.Record, error) {
	if !sess.Converted || len(sess.Transcripts()) == 0 {
		return nil, apperrors.New(apperrors.ErrNothingToSave.Code, apperrors.ErrNothingToSave.Message)
	}
	if s.deps.Exporter == nil {
		return nil, apperrors.New(apperrors.ErrInternal.Code, "exporter not configured")
	}

	base := filename
	if base == "" {
		base = export.BaseFilename(sess.Names())
	}

	rec, err := s.deps.Exporter.ExportTo(ctx, sess.CombinedText(), format, s.cfg.Output.Dir, base)
	if err != nil {
		s.logger.Error("Export failed",
			zap.String("session", sess.ID),
			zap.String("format", string(format)),
			zap.Error(err),
		)
		return nil, err
	}
	rec.ID = uuid.NewString()

	if s.deps.History != nil {
		hist := &store.ExportRecord{
			ID:        rec.ID,
			SessionID: sess.ID,
			Filename:  rec.Filename,
			Path:      rec.Path,
			Format:    string(rec.Format),
			Size:      rec.Size,
		}
		if err := s.deps.History.RecordExport(ctx, hist); err != nil {
			s.logger.Warn("Failed to record export", zap.String("session", sess.ID), zap.Error(err))
		}
	}

	sess.ExportFormat = format
	sess.LastExport = rec
	sess.Touch()
	s.save(ctx, sess)

	s.logger.Info("Session exported",
		zap.String("session", sess.ID),
		zap.String("format", string(format)),
		zap.String("filename", rec.Filename),
	)
	return rec, nil
}
