// Package metrics exposes the data lake's Prometheus instruments.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datalake"

// Collector groups every instrument
type Collector struct {
	syncRuns          *prometheus.CounterVec
	syncDuration      *prometheus.HistogramVec
	recordsWritten    *prometheus.CounterVec
	recordsUnchanged  *prometheus.CounterVec
	entityErrors      *prometheus.CounterVec
	tierSkipped       *prometheus.CounterVec
	connectorRequests *prometheus.CounterVec
}

// New registers the instruments on reg
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Tier runs by outcome.",
		}, []string{"connection", "tier", "status"}),
		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a tier run.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"connection", "tier"}),
		recordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Mirrored records upserted.",
		}, []string{"connection", "entity"}),
		recordsUnchanged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_unchanged_total",
			Help:      "Fetched records skipped by the change detector.",
		}, []string{"connection", "entity"}),
		entityErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_errors_total",
			Help:      "Failed entity syncs.",
		}, []string{"connection", "entity"}),
		tierSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_skipped_total",
			Help:      "Tier ticks skipped.",
		}, []string{"connection", "tier", "reason"}),
		connectorRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_requests_total",
			Help:      "Upstream requests by result.",
		}, []string{"connection", "connector", "result"}),
	}
}

// ObserveRun records the outcome of a tier run
func (c *Collector) ObserveRun(connection, tier string, d time.Duration, failed bool) {
	if c == nil {
		return
	}
	status := "success"
	if failed {
		status = "partial"
	}
	c.syncRuns.WithLabelValues(connection, tier, status).Inc()
	c.syncDuration.WithLabelValues(connection, tier).Observe(d.Seconds())
}

// ObserveEntity records what one entity sync wrote
func (c *Collector) ObserveEntity(connection, entity string, written, unchanged int) {
	if c == nil {
		return
	}
	c.recordsWritten.WithLabelValues(connection, entity).Add(float64(written))
	c.recordsUnchanged.WithLabelValues(connection, entity).Add(float64(unchanged))
}

// EntityFailed counts a failed entity sync
func (c *Collector) EntityFailed(connection, entity string) {
	if c == nil {
		return
	}
	c.entityErrors.WithLabelValues(connection, entity).Inc()
}

// TierSkipped counts a skipped tick; reason is "busy", "paused" or "fresh"
func (c *Collector) TierSkipped(connection, tier, reason string) {
	if c == nil {
		return
	}
	c.tierSkipped.WithLabelValues(connection, tier, reason).Inc()
}

// Request counts one upstream request; result is an HTTP status class or "error"
func (c *Collector) Request(connection, connector, result string) {
	if c == nil {
		return
	}
	c.connectorRequests.WithLabelValues(connection, connector, result).Inc()
}
