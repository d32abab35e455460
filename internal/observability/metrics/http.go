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
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal         *prometheus.CounterVec
	searchCandidates    *prometheus.HistogramVec
	searchSurvivors     *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	llmTokensTotal      *prometheus.CounterVec
	toolCallsTotal      *prometheus.CounterVec
	reservationsTotal   *prometheus.CounterVec
	embeddingCacheTotal *prometheus.CounterVec
	resilience          *resilienceCollectors
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total hybrid artifact searches by status.",
		},
		[]string{"service", "status"},
	)
	searchCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Distribution of candidates sent to the relevance filter per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
		[]string{"service"},
	)
	searchSurvivors := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "survivors",
			Help:      "Distribution of artifacts kept by the relevance filter per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Hybrid search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage reported by the chat model by direction.",
		},
		[]string{"service", "endpoint", "direction", "model"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "docent",
			Name:      "tool_calls_total",
			Help:      "Total docent tool calls by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	reservationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reservation",
			Name:      "submitted_total",
			Help:      "Total accepted reservation applications by program.",
		},
		[]string{"service", "program"},
	)
	embeddingCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Embedding cache lookups by result.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"result"},
	)
	resilience := newResilienceCollectors()

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchCandidates,
		searchSurvivors,
		searchDuration,
		llmTokensTotal,
		toolCallsTotal,
		reservationsTotal,
		embeddingCacheTotal,
	)
	resilience.register(registry)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchTotal:         searchTotal,
		searchCandidates:    searchCandidates,
		searchSurvivors:     searchSurvivors,
		searchDuration:      searchDuration,
		llmTokensTotal:      llmTokensTotal,
		toolCallsTotal:      toolCallsTotal,
		reservationsTotal:   reservationsTotal,
		embeddingCacheTotal: embeddingCacheTotal,
		resilience:          resilience,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for collectors owned by other components.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrackActiveSessions exports the number of live docent sessions.
func (m *HTTPServerMetrics) TrackActiveSessions(count func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live docent sessions.",
		},
		count,
	))
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
	case strings.HasPrefix(path, "/v1/sessions/"):
		if strings.HasSuffix(path, "/move") {
			return "/v1/sessions/{session_id}/move"
		}
		if strings.HasSuffix(path, "/messages") {
			return "/v1/sessions/{session_id}/messages"
		}
		return "/v1/sessions/{session_id}"
	case strings.HasPrefix(path, "/v1/artifacts/"):
		return "/v1/artifacts/{artifact_id}/image"
	case strings.HasPrefix(path, "/v1/reservations/") && path != "/v1/reservations/options":
		return "/v1/reservations/{reservation_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(service string, candidates, survivors int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.searchTotal.WithLabelValues(service, status).Inc()
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		return
	}
	m.searchCandidates.WithLabelValues(service).Observe(float64(candidates))
	m.searchSurvivors.WithLabelValues(service).Observe(float64(survivors))
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, endpoint, model string, promptTokens, completionTokens int) {
	recordTokens(m.llmTokensTotal, service, endpoint, model, promptTokens, completionTokens)
}

func recordTokens(counter *prometheus.CounterVec, service, endpoint, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		counter.WithLabelValues(service, endpoint, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		counter.WithLabelValues(service, endpoint, "out", model).Add(float64(completionTokens))
	}
}

func (m *HTTPServerMetrics) RecordToolCall(service, tool, status string) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(service, tool, status).Inc()
}

func (m *HTTPServerMetrics) RecordReservationSubmitted(service, program string) {
	m.reservationsTotal.WithLabelValues(service, program).Inc()
}

// EmbeddingCacheTotal is the hit/miss counter handed to the embedding cache.
func (m *HTTPServerMetrics) EmbeddingCacheTotal() *prometheus.CounterVec {
	return m.embeddingCacheTotal
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
