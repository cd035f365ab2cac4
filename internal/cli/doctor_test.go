package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gmsas95/devocr/internal/verify"
)

func TestPrintReport_NotReady(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &verify.Report{
		EngineVersion: "tesseract 5.3.0",
		Problems:      []string{"Missing language files: hin, san"},
		Remediation:   "Install the language packs:\n  sudo apt-get install tesseract-ocr-hin tesseract-ocr-san\n",
	}, true)

	out := buf.String()
	assert.Contains(t, out, "✓ Tesseract: tesseract 5.3.0")
	assert.Contains(t, out, "✗ OCR: Missing language files: hin, san")
	assert.Contains(t, out, "The OCR environment is not ready.")
	assert.Contains(t, out, "tesseract-ocr-hin tesseract-ocr-san")
}

func TestPrintReport_OK(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &verify.Report{OK: true, TessdataDir: "/usr/share/tessdata"}, true)

	out := buf.String()
	assert.Contains(t, out, "✓ Tessdata: /usr/share/tessdata")
	assert.Contains(t, out, "All OCR checks passed.")
}

func TestPrintChecks(t *testing.T) {
	var buf bytes.Buffer
	printChecks(&buf, []check{
		{name: "Config", ok: true, detail: "loaded"},
		{name: "PDF export", ok: true, warn: true, detail: "fallback"},
		{name: "pdftoppm", detail: "not found"},
	}, true)

	assert.Equal(t, "✓ Config: loaded\n! PDF export: fallback\n✗ pdftoppm: not found\n", buf.String())
}
