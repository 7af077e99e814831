// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpSend     = "send"
	OpAddInput = "add_input"
	OpRefresh  = "refresh"
)

// Outcome labels for stream durations.
const (
	OutcomeOK         = "ok"
	OutcomeTransport  = "transport"
	OutcomeValidation = "validation"
	OutcomeEmpty      = "empty-stream"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics groups every collector the reconciler and transport report to.
type Metrics struct {
	FramesDecoded      *prometheus.CounterVec
	IncompleteTicks    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Rollbacks          *prometheus.CounterVec
	OptimisticDropped  prometheus.Counter
	StreamDuration     *prometheus.HistogramVec
	Requests           *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is useful in tests.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Complete message frames decoded from streams.",
		}, []string{"op"}),
		IncompleteTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incomplete_ticks_total",
			Help:      "Progress ticks whose last frame was not yet complete.",
		}, []string{"op"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Complete frames rejected by schema validation.",
		}, []string{"op"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Optimistic changes rolled back, by failure kind.",
		}, []string{"op", "reason"}),
		OptimisticDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_confirmed_total",
			Help:      "Optimistic messages replaced by a confirmed message.",
		}),
		StreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Wall time of streaming operations.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"op", "outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests to the message API, by endpoint and status.",
		}, []string{"endpoint", "status"}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FramesDecoded, m.IncompleteTicks, m.ValidationFailures,
		m.Rollbacks, m.OptimisticDropped, m.StreamDuration, m.Requests,
	}
}

// ObserveFrame counts a decoded frame.
func (m *Metrics) ObserveFrame(op string) {
	if m == nil {
		return
	}
	m.FramesDecoded.WithLabelValues(op).Inc()
}

// ObserveIncomplete counts a tick that produced no complete frame.
func (m *Metrics) ObserveIncomplete(op string) {
	if m == nil {
		return
	}
	m.IncompleteTicks.WithLabelValues(op).Inc()
}

// ObserveValidationFailure counts a frame rejected by the schema.
func (m *Metrics) ObserveValidationFailure(op string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(op).Inc()
}

// ObserveRollback counts a rollback with its failure kind.
func (m *Metrics) ObserveRollback(op, reason string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(op, reason).Inc()
}

// ObserveOptimisticDropped counts optimistic entries replaced by confirmed ones.
func (m *Metrics) ObserveOptimisticDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OptimisticDropped.Add(float64(n))
}

// ObserveStream records the duration of a finished streaming operation.
func (m *Metrics) ObserveStream(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StreamDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// ObserveRequest counts an HTTP request. status 0 means no response.
func (m *Metrics) ObserveRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.Requests.WithLabelValues(endpoint, label).Inc()
}
