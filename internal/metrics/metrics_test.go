package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Error("New() returned nil")
	}
}

func TestDefault(t *testing.T) {
	m1 := Default()
	m2 := Default()

	if m1 != m2 {
		t.Error("Default() should return same instance")
	}
}

func TestNilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordPage(time.Second, nil)
	m.RecordBatch(time.Second, errors.New("boom"))
	m.RecordDocument("full", time.Second, nil)
	m.RecordExport("txt", nil)
	m.ConversionStarted()
	m.ConversionFinished()
	m.RecordRequest("GET", 200)
	m.SetBreakerState("pdf", 2)
	m.SetActiveSessions(3)
}

func TestRecordPage(t *testing.T) {
	m := New()
	m.RecordPage(100*time.Millisecond, nil)
	m.RecordPage(200*time.Millisecond, errors.New("tesseract failed"))

	if m.pagesProcessed.Load() != 2 {
		t.Errorf("Expected 2 pages, got %d", m.pagesProcessed.Load())
	}
	if m.pagesFailed.Load() != 1 {
		t.Errorf("Expected 1 failed page, got %d", m.pagesFailed.Load())
	}
	if got := testutil.ToFloat64(m.pages.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected error counter 1, got %v", got)
	}
}

func TestRecordDocument(t *testing.T) {
	m := New()
	m.RecordDocument("preview", time.Second, nil)
	m.RecordDocument("full", time.Second, nil)
	m.RecordDocument("full", time.Second, errors.New("batch failed"))

	if m.documentsConverted.Load() != 1 {
		t.Error("Only successful full passes count as converted")
	}
	if m.documentsFailed.Load() != 1 {
		t.Error("Failed documents not counted")
	}
	if got := testutil.ToFloat64(m.documents.WithLabelValues("preview", "ok")); got != 1 {
		t.Errorf("Expected preview counter 1, got %v", got)
	}
}

func TestRecordExport(t *testing.T) {
	m := New()
	m.RecordExport("docx", nil)
	m.RecordExport("docx", nil)
	m.RecordExport("pdf", errors.New("chrome missing"))

	s := m.Snapshot()
	if s.ExportsWritten != 2 {
		t.Errorf("Expected 2 exports, got %d", s.ExportsWritten)
	}
	if s.ExportsFailed != 1 {
		t.Errorf("Expected 1 failed export, got %d", s.ExportsFailed)
	}
	if s.ExportsByFormat["docx"] != 2 {
		t.Errorf("Expected 2 docx exports, got %d", s.ExportsByFormat["docx"])
	}
}

func TestActiveConversions(t *testing.T) {
	m := New()
	m.ConversionStarted()
	m.ConversionStarted()
	m.ConversionFinished()

	if m.Snapshot().ActiveConversions != 1 {
		t.Error("Active conversions not tracked")
	}
	if got := testutil.ToFloat64(m.activeRuns); got != 1 {
		t.Errorf("Expected gauge 1, got %v", got)
	}
}

func TestSnapshot_SuccessRate(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		m.RecordPage(time.Millisecond, nil)
	}
	m.RecordPage(time.Millisecond, errors.New("x"))

	if rate := m.Snapshot().PageSuccessRate; rate != 75 {
		t.Errorf("Expected 75%% success rate, got %v", rate)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordExport("html", nil)
	m.RecordRequest("POST", 202)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `devocr_exports_total{format="html",status="ok"} 1`) {
		t.Errorf("Export counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, `devocr_http_requests_total{code="202",method="POST"} 1`) {
		t.Error("Request counter missing from exposition")
	}
}
