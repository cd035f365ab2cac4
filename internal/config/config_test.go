package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load("", dir)
	require.NoError(t, err)

	assert.Equal(t, 8501, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Processing.DPI.Default)
	assert.Equal(t, 10, cfg.Processing.BatchSize.Default)
	assert.Equal(t, 3, cfg.Processing.PreviewPages)
	assert.Equal(t, "devanagari_ocr_", cfg.Processing.ScratchPrefix)
	assert.Equal(t, "--oem 3 --psm 6 -l hin+san", cfg.OCR.Config)
	assert.Equal(t, []string{"hin", "san"}, cfg.OCR.RequiredLanguages)
	assert.Equal(t, filepath.Join(dir, "devocr.db"), cfg.Storage.SQLitePath)
	assert.NotEmpty(t, cfg.Security.DownloadSecret)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: 9000
processing:
  dpi:
    default: 1000
  preview_pages: 5
output:
  dir: /tmp/devocr-out
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("DEVOCR_SERVER_ADDRESS", "127.0.0.1")

	cfg, err := Load(path, dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, 300, cfg.Processing.DPI.Default, "default DPI is clamped to max")
	assert.Equal(t, 5, cfg.Processing.PreviewPages)
	assert.Equal(t, "/tmp/devocr-out", cfg.Output.Dir)
}

func TestLoad_InvalidBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  dpi:\n    min: 400\n    max: 100\n"), 0644))

	_, err := Load(path, dir)
	assert.Error(t, err)
}

func TestRange_Clamp(t *testing.T) {
	r := Range{Default: 200, Min: 100, Max: 300}

	assert.Equal(t, 200, r.Clamp(0))
	assert.Equal(t, 100, r.Clamp(50))
	assert.Equal(t, 300, r.Clamp(600))
	assert.Equal(t, 150, r.Clamp(150))
}

func TestWorkerCount(t *testing.T) {
	assert.Equal(t, 4, ProcessingConfig{Workers: 4}.WorkerCount())
	assert.GreaterOrEqual(t, ProcessingConfig{}.WorkerCount(), 1)
	assert.Equal(t, DefaultWorkers(), ProcessingConfig{}.WorkerCount())
}
