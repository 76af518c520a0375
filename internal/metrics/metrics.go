package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "document_chat"

// Chat turn outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	chatTurns       *prometheus.CounterVec
	chatDuration    prometheus.Histogram
	sessionsCreated prometheus.Counter
	sessionsActive  prometheus.Gauge
	retrieved       prometheus.Histogram

	ingestFiles    *prometheus.CounterVec
	ingestPassages prometheus.Counter

	fetchTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.chatTurns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_turns_total",
		Help:      "Chat turns by outcome",
	}, []string{"outcome"})

	m.chatDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chat_turn_duration_seconds",
		Help:      "Time to answer one chat turn",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	m.sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Sessions created since start",
	})

	m.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of live sessions",
	})

	m.retrieved = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retrieved_passages",
		Help:      "Passages above the threshold per chat turn",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
	})

	m.ingestFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_files_total",
		Help:      "Ingested files by status",
	}, []string{"status"})

	m.ingestPassages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_passages_total",
		Help:      "Passages written to the vector index",
	})

	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_documents_total",
		Help:      "Fetched documents by result",
	}, []string{"result"})

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.chatTurns,
		m.chatDuration,
		m.sessionsCreated,
		m.sessionsActive,
		m.retrieved,
		m.ingestFiles,
		m.ingestPassages,
		m.fetchTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format, for
// runs too short to be scraped.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records count and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ChatTurn(outcome string, passages int, elapsed time.Duration) {
	m.chatTurns.WithLabelValues(outcome).Inc()
	m.chatDuration.Observe(elapsed.Seconds())
	if outcome != OutcomeError {
		m.retrieved.Observe(float64(passages))
	}
}

func (m *Metrics) SessionCreated(active int) {
	m.sessionsCreated.Inc()
	m.sessionsActive.Set(float64(active))
}

func (m *Metrics) SessionsActive(active int) {
	m.sessionsActive.Set(float64(active))
}

func (m *Metrics) IngestFile(status string, passages int) {
	m.ingestFiles.WithLabelValues(status).Inc()
	m.ingestPassages.Add(float64(passages))
}

func (m *Metrics) Fetch(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.fetchTotal.WithLabelValues(result).Inc()
}
