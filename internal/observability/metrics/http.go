package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	intentTotal         *prometheus.CounterVec
	modeTotal           *prometheus.CounterVec
	retrievedBooks      *prometheus.HistogramVec
	stageDuration       *prometheus.HistogramVec
	upstreamCallsTotal  *prometheus.CounterVec
	upstreamDuration    *prometheus.HistogramVec
	upstreamRetries     *prometheus.CounterVec
	breakerState        *prometheus.GaugeVec
	breakerTransitions  *prometheus.CounterVec
	uploadDocumentsSize *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aibot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aibot",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	intentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "chat",
			Name:      "intents_total",
			Help:      "Classified chat intents by source.",
		},
		[]string{"service", "intent", "source"},
	)
	modeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "chat",
			Name:      "resolved_modes_total",
			Help:      "Resolved chat modes, with downgrades from deep search flagged.",
		},
		[]string{"service", "mode", "downgraded"},
	)
	retrievedBooks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aibot",
			Subsystem: "books",
			Name:      "retrieved",
			Help:      "Distribution of books returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "endpoint"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aibot",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of deep search and document analysis stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90, 180},
		},
		[]string{"service", "pipeline", "stage", "outcome"},
	)
	upstreamCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Outbound calls by operation and status.",
		},
		[]string{"service", "operation", "status"},
	)
	upstreamDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aibot",
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Outbound call duration including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
	upstreamRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Retried outbound attempts.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aibot",
			Subsystem: "upstream",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aibot",
			Subsystem: "upstream",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes.",
		},
		[]string{"service", "operation", "to"},
	)
	uploadDocumentsSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aibot",
			Subsystem: "upload",
			Name:      "document_runes",
			Help:      "Extracted text length of uploaded documents.",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 20000},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		intentTotal,
		modeTotal,
		retrievedBooks,
		stageDuration,
		upstreamCallsTotal,
		upstreamDuration,
		upstreamRetries,
		breakerState,
		breakerTransitions,
		uploadDocumentsSize,
	)

	return &HTTPServerMetrics{
		service:             service,
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		intentTotal:         intentTotal,
		modeTotal:           modeTotal,
		retrievedBooks:      retrievedBooks,
		stageDuration:       stageDuration,
		upstreamCallsTotal:  upstreamCallsTotal,
		upstreamDuration:    upstreamDuration,
		upstreamRetries:     upstreamRetries,
		breakerState:        breakerState,
		breakerTransitions:  breakerTransitions,
		uploadDocumentsSize: uploadDocumentsSize,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/local-aibot/sessions/"):
		return "/api/local-aibot/sessions/{session_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIntent(service, intent, source string) {
	if intent == "" {
		intent = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	m.intentTotal.WithLabelValues(service, intent, source).Inc()
}

func (m *HTTPServerMetrics) RecordModeResolution(service, mode string, downgraded bool) {
	m.modeTotal.WithLabelValues(service, mode, strconv.FormatBool(downgraded)).Inc()
}

func (m *HTTPServerMetrics) RecordRetrievedBooks(service, endpoint string, count int) {
	m.retrievedBooks.WithLabelValues(service, endpoint).Observe(float64(count))
}

func (m *HTTPServerMetrics) RecordUploadedDocument(service string, runes int) {
	m.uploadDocumentsSize.WithLabelValues(service).Observe(float64(runes))
}

// ObserveStage records one pipeline stage.
func (m *HTTPServerMetrics) ObserveStage(pipeline, stage, outcome string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(m.service, pipeline, stage, outcome).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) CallFinished(operation string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.upstreamCallsTotal.WithLabelValues(m.service, operation, status).Inc()
	m.upstreamDuration.WithLabelValues(m.service, operation).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) RetryAttempted(operation string) {
	m.upstreamRetries.WithLabelValues(m.service, operation).Inc()
}

func (m *HTTPServerMetrics) BreakerStateChanged(operation, _, to string) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerStateValue(to))
	m.breakerTransitions.WithLabelValues(m.service, operation, to).Inc()
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
