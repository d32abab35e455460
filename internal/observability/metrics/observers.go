package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const namespace = "docent"

type resilienceCollectors struct {
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newResilienceCollectors() *resilienceCollectors {
	return &resilienceCollectors{
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retried outbound calls by operation and attempt.",
			},
			[]string{"service", "operation", "attempt"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_open",
				Help:      "1 while the circuit breaker of an operation is not closed.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (c *resilienceCollectors) register(registry *prometheus.Registry) {
	registry.MustRegister(c.retriesTotal, c.breakerState)
}

func (c *resilienceCollectors) retry(service, operation string, attempt int) {
	c.retriesTotal.WithLabelValues(service, operation, strconv.Itoa(attempt)).Inc()
}

func (c *resilienceCollectors) state(service, operation, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	c.breakerState.WithLabelValues(service, operation).Set(open)
}

// APIObservers binds the API metrics to one service label. It satisfies the
// observer interfaces of retrieval, the docent tools, reservations and resilience.
type APIObservers struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) Observers(service string) *APIObservers {
	return &APIObservers{metrics: m, service: service}
}

func (o *APIObservers) ObserveSearch(candidates, survivors int, duration time.Duration, err error) {
	o.metrics.RecordSearch(o.service, candidates, survivors, duration, err)
}

func (o *APIObservers) ObserveToolCall(tool, status string) {
	o.metrics.RecordToolCall(o.service, tool, status)
}

func (o *APIObservers) ObserveReservationSubmitted(program string) {
	o.metrics.RecordReservationSubmitted(o.service, program)
}

func (o *APIObservers) ObserveRetry(operation string, attempt int) {
	o.metrics.resilience.retry(o.service, operation, attempt)
}

func (o *APIObservers) ObserveBreakerState(operation, state string) {
	o.metrics.resilience.state(o.service, operation, state)
}

type WorkerObservers struct {
	metrics *WorkerMetrics
	service string
}

func (m *WorkerMetrics) Observers(service string) *WorkerObservers {
	return &WorkerObservers{metrics: m, service: service}
}

func (o *WorkerObservers) ObserveReservationProcessed(status domain.ReservationStatus) {
	o.metrics.RecordReservationOutcome(o.service, string(status))
}

func (o *WorkerObservers) ObserveRetry(operation string, attempt int) {
	o.metrics.resilience.retry(o.service, operation, attempt)
}

func (o *WorkerObservers) ObserveBreakerState(operation, state string) {
	o.metrics.resilience.state(o.service, operation, state)
}

// TokenRecorder is implemented by both metric sets.
type TokenRecorder interface {
	RecordTokenUsage(service, endpoint, model string, promptTokens, completionTokens int)
}

// InstrumentedChatModel records the token usage reported by every completion.
type InstrumentedChatModel struct {
	next     ports.ChatModel
	recorder TokenRecorder
	service  string
	endpoint string
}

func InstrumentChatModel(next ports.ChatModel, recorder TokenRecorder, service, endpoint string) *InstrumentedChatModel {
	return &InstrumentedChatModel{
		next:     next,
		recorder: recorder,
		service:  service,
		endpoint: endpoint,
	}
}

func (m *InstrumentedChatModel) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	m.recorder.RecordTokenUsage(m.service, m.endpoint, resp.Model, resp.PromptTokens, resp.CompletionTokens)
	return resp, nil
}
