// Package metrics exports room list processor diagnostics as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/roomlist/schema"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "roomlist"

// Batch results used as the "result" label.
const (
	ResultApplied   = "applied"
	ResultUnchanged = "unchanged"
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
)

// Sink records processor diagnostics into a Prometheus registry.
type Sink struct {
	registry       *prometheus.Registry
	batches        *prometheus.CounterVec
	duplicateRooms prometheus.Counter
	duplicateBatch prometheus.Counter
	applySeconds   prometheus.Histogram
	rooms          prometheus.Gauge
	rebuilds       prometheus.Counter
	rebuildMissing prometheus.Counter
}

// New constructs a Sink backed by a fresh registry.
func New(namespace string) *Sink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Sink{
		registry: reg,
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Room list update batches by result",
		}, []string{"result"}),
		duplicateRooms: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_rooms_total",
			Help:      "Surplus room list entries sharing a room id with an earlier entry",
		}),
		duplicateBatch: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_batches_total",
			Help:      "Batches after which the room list contained duplicate room ids",
		}),
		applySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_apply_seconds",
			Help:      "Time spent applying one batch, including summary builds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms in the most recently applied list",
		}),
		rebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuilds_total",
			Help:      "Completed summary rebuilds",
		}),
		rebuildMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_missing_rooms_total",
			Help:      "Rooms left stale during a rebuild because the lookup returned nothing",
		}),
	}
}

// Registry exposes the underlying registry.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// BatchApplied records a successfully applied batch.
func (s *Sink) BatchApplied(_ context.Context, report schema.BatchReport) {
	result := ResultApplied
	if !report.Published {
		result = ResultUnchanged
	}
	s.batches.WithLabelValues(result).Inc()
	s.applySeconds.Observe(report.Elapsed.Seconds())
	s.rooms.Set(float64(report.Rooms))
}

// BatchCancelled records a batch superseded by a reset or clear.
func (s *Sink) BatchCancelled(_ context.Context, _ uint64) {
	s.batches.WithLabelValues(ResultCancelled).Inc()
}

// BatchFailed records a batch that was discarded because of an error.
func (s *Sink) BatchFailed(_ context.Context, _ uint64, _ error) {
	s.batches.WithLabelValues(ResultFailed).Inc()
}

// DuplicateRooms records duplicate room ids found after a batch.
func (s *Sink) DuplicateRooms(_ context.Context, report schema.DuplicateReport) {
	s.duplicateBatch.Inc()
	s.duplicateRooms.Add(float64(report.Extra()))
}

// Rebuilt records a completed rebuild.
func (s *Sink) Rebuilt(_ context.Context, report schema.RebuildReport) {
	s.rebuilds.Inc()
	s.rebuildMissing.Add(float64(report.Missing))
	s.rooms.Set(float64(report.Rooms))
}
