// Package metrics exposes the Prometheus collectors shared by the pipeline,
// the acquisition tiers and the caches. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semtrip"

// Tier outcomes recorded by fallback chains.
const (
	OutcomeHit   = "hit"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	tierAttempts   *prometheus.CounterVec
	cacheRequests  *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	upstreamCalls  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "status"}),
		tierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_attempts_total",
			Help:      "Fallback tier attempts by chain, tier and outcome.",
		}, []string{"chain", "tier", "outcome"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries evicted to make room for new ones.",
		}, []string{"cache"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound requests to external services by service and result.",
		}, []string{"service", "result"}),
	}
	reg.MustRegister(m.stageDuration, m.tierAttempts, m.cacheRequests, m.cacheEvictions, m.upstreamCalls)
	return m
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// TierAttempt records the outcome of one fallback tier.
func (m *Metrics) TierAttempt(chain, tier, outcome string) {
	if m == nil {
		return
	}
	m.tierAttempts.WithLabelValues(chain, tier, outcome).Inc()
}

// CacheHit records a cache hit.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a cache miss.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

// CacheEviction records an eviction.
func (m *Metrics) CacheEviction(cache string) {
	if m == nil {
		return
	}
	m.cacheEvictions.WithLabelValues(cache).Inc()
}

// UpstreamCall records an outbound request. result is "ok" or "error".
func (m *Metrics) UpstreamCall(service, result string) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(service, result).Inc()
}
