package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devocr"

// Metrics tracks pipeline, export and HTTP counters. Every method is safe on
// a nil receiver so components can run without instrumentation.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	pages          *prometheus.CounterVec
	pageDuration   prometheus.Histogram
	batches        *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	documents      *prometheus.CounterVec
	documentTime   *prometheus.HistogramVec
	exports        *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	requests       *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
	sessionsActive prometheus.Gauge

	pagesProcessed     atomic.Int64
	pagesFailed        atomic.Int64
	batchesFailed      atomic.Int64
	documentsConverted atomic.Int64
	documentsFailed    atomic.Int64
	exportsWritten     atomic.Int64
	exportsFailed      atomic.Int64
	activeConversions  atomic.Int64
	requestsTotal      atomic.Int64

	formatCounts map[string]*atomic.Int64
	formatLock   sync.Mutex
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		startTime:    time.Now(),
		registry:     prometheus.NewRegistry(),
		formatCounts: make(map[string]*atomic.Int64),
	}

	m.pages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_total",
		Help:      "Pages recognized, by outcome",
	}, []string{"status"})
	m.pageDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "page_duration_seconds",
		Help:      "OCR time per page",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})
	m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Batches processed, by outcome",
	}, []string{"status"})
	m.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time per batch",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Document passes, by mode and outcome",
	}, []string{"mode", "status"})
	m.documentTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "document_duration_seconds",
		Help:      "Wall time per document pass",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"mode"})
	m.exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Exports written, by format and outcome",
	}, []string{"format", "status"})
	m.activeRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_conversions",
		Help:      "Conversions currently running",
	})
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by method and status code",
	}, []string{"method", "code"})
	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions held by the session store",
	})

	m.registry.MustRegister(
		m.pages, m.pageDuration,
		m.batches, m.batchDuration,
		m.documents, m.documentTime,
		m.exports, m.activeRuns,
		m.requests, m.breakerState, m.sessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) RecordPage(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pagesProcessed.Add(1)
	if err != nil {
		m.pagesFailed.Add(1)
	}
	m.pages.WithLabelValues(status(err)).Inc()
	m.pageDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordBatch(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.batchesFailed.Add(1)
	}
	m.batches.WithLabelValues(status(err)).Inc()
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordDocument(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.documentsFailed.Add(1)
	} else if mode == "full" {
		m.documentsConverted.Add(1)
	}
	m.documents.WithLabelValues(mode, status(err)).Inc()
	m.documentTime.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RecordExport(format string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.exportsFailed.Add(1)
	} else {
		m.exportsWritten.Add(1)
		m.formatLock.Lock()
		if m.formatCounts[format] == nil {
			m.formatCounts[format] = &atomic.Int64{}
		}
		m.formatCounts[format].Add(1)
		m.formatLock.Unlock()
	}
	m.exports.WithLabelValues(format, status(err)).Inc()
}

func (m *Metrics) ConversionStarted() {
	if m == nil {
		return
	}
	m.activeConversions.Add(1)
	m.activeRuns.Inc()
}

func (m *Metrics) ConversionFinished() {
	if m == nil {
		return
	}
	m.activeConversions.Add(-1)
	m.activeRuns.Dec()
}

func (m *Metrics) RecordRequest(method string, code int) {
	if m == nil {
		return
	}
	m.requestsTotal.Add(1)
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// SetBreakerState publishes a gobreaker state as its numeric value.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type Snapshot struct {
	Uptime             time.Duration    `json:"uptime"`
	PagesProcessed     int64            `json:"pages_processed"`
	PagesFailed        int64            `json:"pages_failed"`
	BatchesFailed      int64            `json:"batches_failed"`
	DocumentsConverted int64            `json:"documents_converted"`
	DocumentsFailed    int64            `json:"documents_failed"`
	ExportsWritten     int64            `json:"exports_written"`
	ExportsFailed      int64            `json:"exports_failed"`
	ActiveConversions  int64            `json:"active_conversions"`
	RequestsTotal      int64            `json:"requests_total"`
	ExportsByFormat    map[string]int64 `json:"exports_by_format"`
	PageSuccessRate    float64          `json:"page_success_rate"`
}

func (m *Metrics) Snapshot() *Snapshot {
	s := &Snapshot{
		Uptime:             time.Since(m.startTime),
		PagesProcessed:     m.pagesProcessed.Load(),
		PagesFailed:        m.pagesFailed.Load(),
		BatchesFailed:      m.batchesFailed.Load(),
		DocumentsConverted: m.documentsConverted.Load(),
		DocumentsFailed:    m.documentsFailed.Load(),
		ExportsWritten:     m.exportsWritten.Load(),
		ExportsFailed:      m.exportsFailed.Load(),
		ActiveConversions:  m.activeConversions.Load(),
		RequestsTotal:      m.requestsTotal.Load(),
		ExportsByFormat:    make(map[string]int64),
	}

	if s.PagesProcessed > 0 {
		s.PageSuccessRate = float64(s.PagesProcessed-s.PagesFailed) / float64(s.PagesProcessed) * 100
	}

	m.formatLock.Lock()
	for k, v := range m.formatCounts {
		s.ExportsByFormat[k] = v.Load()
	}
	m.formatLock.Unlock()

	return s
}
