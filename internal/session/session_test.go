package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/devocr/internal/errors"
	"github.com/gmsas95/devocr/internal/export"
)

func TestSession_AddDocumentAndText(t *testing.T) {
	s := NewSession()
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Converted)

	s.AddDocument(DocumentResult{Name: "broken.pdf", Error: "batch failed"})
	assert.False(t, s.Converted, "a failed document alone is not a conversion")

	s.AddDocument(DocumentResult{Name: "a.pdf", Text: "first"})
	s.AddDocument(DocumentResult{Name: "b.pdf", Text: "second"})

	assert.True(t, s.Converted)
	assert.Equal(t, []string{"first", "second"}, s.Transcripts())
	assert.Equal(t, "first\nsecond", s.CombinedText())
	assert.Equal(t, []string{"broken.pdf", "a.pdf", "b.pdf"}, s.Names())
}

func TestSession_Reset(t *testing.T) {
	s := NewSession()
	s.AddDocument(DocumentResult{Name: "a.pdf", Text: "x"})
	s.ExportFormat = export.FormatDOCX
	s.LastExport = &export.Record{Filename: "a.docx"}

	s.Reset()

	assert.False(t, s.Converted)
	assert.Empty(t, s.Documents)
	assert.Nil(t, s.LastExport)
	assert.Equal(t, export.FormatDOCX, s.ExportFormat, "format choice survives a reset")
	assert.Equal(t, "", s.CombinedText())
}

func TestSession_CloneIsIndependent(t *testing.T) {
	s := NewSession()
	s.AddDocument(DocumentResult{Name: "a.pdf", Text: "x"})
	s.LastExport = &export.Record{Filename: "a.txt"}

	c := s.Clone()
	c.Documents[0].Text = "changed"
	c.LastExport.Filename = "b.txt"

	assert.Equal(t, "x", s.Documents[0].Text)
	assert.Equal(t, "a.txt", s.LastExport.Filename)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestSession_Expired(t *testing.T) {
	s := NewSession()
	now := s.UpdatedAt
	assert.False(t, s.Expired(now.Add(time.Minute), time.Hour))
	assert.True(t, s.Expired(now.Add(2*time.Hour), time.Hour))
	assert.False(t, s.Expired(now.Add(24*time.Hour), 0), "zero ttl never expires")
}

func stores(t *testing.T, ttl time.Duration) map[string]Store {
	t.Helper()
	b, err := OpenBadger("", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(ttl),
		"badger": b,
	}
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			s, err := st.Create(ctx)
			require.NoError(t, err)

			got, err := st.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, s.ID, got.ID)
			assert.Empty(t, got.Documents)

			got.AddDocument(DocumentResult{Name: "a.pdf", Pages: 3, Text: "नमस्ते", Elapsed: 2 * time.Second})
			got.ExportFormat = export.FormatPDF
			require.NoError(t, st.Save(ctx, got))

			again, err := st.Get(ctx, s.ID)
			require.NoError(t, err)
			require.Len(t, again.Documents, 1)
			assert.Equal(t, "नमस्ते", again.Documents[0].Text)
			assert.Equal(t, 2*time.Second, again.Documents[0].Elapsed)
			assert.Equal(t, export.FormatPDF, again.ExportFormat)
			assert.True(t, again.Converted)

			n, err := st.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			require.NoError(t, st.Delete(ctx, s.ID))
			_, err = st.Get(ctx, s.ID)
			assert.True(t, apperrors.Is(err, apperrors.ErrSessionNotFound))
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, st := range stores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(context.Background(), "nope")
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrSessionNotFound.Code, apperrors.GetCode(err))
		})
	}
}

func TestStore_Expired(t *testing.T) {
	ctx := context.Background()
	for name, st := range stores(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			fresh, err := st.Create(ctx)
			require.NoError(t, err)

			stale := NewSession()
			stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
			require.NoError(t, st.Save(ctx, stale))

			ids, err := st.Expired(ctx, time.Now())
			require.NoError(t, err)
			assert.Equal(t, []string{stale.ID}, ids)
			assert.NotContains(t, ids, fresh.ID)
		})
	}
}

func TestMemoryStore_GetHidesExpired(t *testing.T) {
	st := NewMemoryStore(time.Hour)
	s := NewSession()
	s.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, st.Save(context.Background(), s))

	_, err := st.Get(context.Background(), s.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionNotFound))
}

func TestMemoryStore_SaveCopies(t *testing.T) {
	st := NewMemoryStore(0)
	s, err := st.Create(context.Background())
	require.NoError(t, err)

	s.AddDocument(DocumentResult{Name: "a.pdf", Text: "x"})
	got, err := st.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Documents, "unsaved changes must not leak into the store")
}

func TestBadgerStore_GC(t *testing.T) {
	b, err := OpenBadger(t.TempDir(), time.Hour)
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Create(context.Background())
	require.NoError(t, err)
	assert.NoError(t, b.GC())
}
