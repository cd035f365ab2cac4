package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/devocr/internal/config"
	"github.com/gmsas95/devocr/internal/export"
	"github.com/gmsas95/devocr/internal/metrics"
	"github.com/gmsas95/devocr/internal/session"
	"github.com/gmsas95/devocr/internal/store"
)

func testConfig(outputDir string) *config.Config {
	return &config.Config{
		Output:  config.OutputConfig{Dir: outputDir},
		Janitor: config.JanitorConfig{Schedule: "@every 1h", ExportMaxAgeMins: 60},
	}
}

func gaugeValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	sessions := session.NewMemoryStore(time.Hour)
	fresh, err := sessions.Create(ctx)
	require.NoError(t, err)
	stale := session.NewSession()
	stale.UpdatedAt = old
	require.NoError(t, sessions.Save(ctx, stale))

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	stalePath := filepath.Join(out, "old.txt")
	freshPath := filepath.Join(out, "new.txt")
	require.NoError(t, os.WriteFile(stalePath, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(freshPath, []byte("y"), 0644))
	staleRec := &store.ExportRecord{Filename: "old.txt", Path: stalePath, CreatedAt: old}
	require.NoError(t, history.RecordExport(ctx, staleRec))
	require.NoError(t, history.RecordExport(ctx, &store.ExportRecord{Filename: "new.txt", Path: freshPath}))

	tmp := filepath.Join(out, export.TempPrefix+"123")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0644))
	require.NoError(t, os.Chtimes(tmp, old, old))

	m := metrics.New()
	j := New(testConfig(out), sessions, history, zap.NewNop(), m)
	res := j.RunOnce(ctx)

	assert.Equal(t, Result{Sessions: 1, Exports: 1, TempFiles: 1}, res)
	assert.NoFileExists(t, stalePath)
	assert.NoFileExists(t, tmp)
	assert.FileExists(t, freshPath)

	_, err = sessions.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	n, _ := sessions.Count(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, gaugeValue(t, m, "devocr_sessions_active"))

	rec, err := history.GetExport(ctx, staleRec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExportDeleted, rec.Status)

	// second sweep finds nothing
	assert.Equal(t, Result{}, j.RunOnce(ctx))
}

func TestRunOnce_AlreadyRemovedFile(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	rec := &store.ExportRecord{Filename: "gone.txt", Path: filepath.Join(out, "gone.txt"), CreatedAt: time.Now().Add(-3 * time.Hour)}
	require.NoError(t, history.RecordExport(ctx, rec))

	res := New(testConfig(out), nil, history, zap.NewNop(), nil).RunOnce(ctx)
	assert.Equal(t, 1, res.Exports)
}

func TestRunOnce_SkipsPathsOutsideOutput(t *testing.T) {
	ctx := context.Background()
	out := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(elsewhere, []byte("x"), 0644))

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()
	require.NoError(t, history.RecordExport(ctx, &store.ExportRecord{Path: elsewhere, CreatedAt: time.Now().Add(-3 * time.Hour)}))

	res := New(testConfig(out), nil, history, zap.NewNop(), nil).RunOnce(ctx)
	assert.Equal(t, 0, res.Exports)
	assert.FileExists(t, elsewhere)
}

func TestStartStop(t *testing.T) {
	j := New(testConfig(t.TempDir()), session.NewMemoryStore(0), nil, zap.NewNop(), nil)

	require.NoError(t, j.Start())
	assert.True(t, j.IsRunning())
	assert.Error(t, j.Start())

	j.Stop()
	assert.False(t, j.IsRunning())
	j.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Janitor.Schedule = "every now and then"

	j := New(cfg, nil, nil, zap.NewNop(), nil)
	assert.Error(t, j.Start())
	assert.False(t, j.IsRunning())
}
