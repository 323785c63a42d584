// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keygate/keygate/internal/auth"
)

// Metrics contains the Keygate Prometheus collectors. It implements
// auth.Recorder.
type Metrics struct {
	TokensIssued   *prometheus.CounterVec
	TokenDeletions *prometheus.CounterVec
	AuthOutcomes   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	SweepRuns      *prometheus.CounterVec
	SweepLastSwept prometheus.Gauge
}

// NewMetrics creates and registers the Keygate metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_tokens_issued_total",
				Help: "Total number of session tokens issued by device type",
			},
			[]string{"device"},
		),
		TokenDeletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_tokens_deleted_total",
				Help: "Total number of session tokens deleted by reason",
			},
			[]string{"reason"},
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_auth_outcomes_total",
				Help: "Total number of register, login and logout results by outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_http_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keygate_http_request_duration_seconds",
				Help:    "API request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keygate_sweep_runs_total",
				Help: "Total number of expired token sweeps by result",
			},
			[]string{"result"},
		),
		SweepLastSwept: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "keygate_sweep_last_deleted",
				Help: "Tokens deleted by the most recent sweep",
			},
		),
	}

	reg.MustRegister(
		m.TokensIssued,
		m.TokenDeletions,
		m.AuthOutcomes,
		m.HTTPRequests,
		m.HTTPDuration,
		m.SweepRuns,
		m.SweepLastSwept,
	)
	return m
}

// TokenIssued counts one issued token.
func (m *Metrics) TokenIssued(device auth.DeviceType) {
	m.TokensIssued.WithLabelValues(string(device)).Inc()
}

// TokensDeleted counts n deleted tokens. Zero is ignored.
func (m *Metrics) TokensDeleted(reason auth.DeleteReason, n int64) {
	if n <= 0 {
		return
	}
	m.TokenDeletions.WithLabelValues(string(reason)).Add(float64(n))
}

// AuthOutcome counts one register, login or logout result.
func (m *Metrics) AuthOutcome(operation, outcome string) {
	m.AuthOutcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveRequest records one API request against its route pattern.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSweep records one sweeper pass.
func (m *Metrics) ObserveSweep(deleted int64, err error) {
	if err != nil {
		m.SweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.SweepRuns.WithLabelValues("ok").Inc()
	m.SweepLastSwept.Set(float64(deleted))
}

// Compile-time interface check.
var _ auth.Recorder = (*Metrics)(nil)
