package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/viewcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	sourceCalls *prometheus.CounterVec
	staleWrites *prometheus.CounterVec
	evicts      *prometheus.CounterVec
	flushes     *prometheus.CounterVec
	flushWalk   prometheus.Histogram
	slots       prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
	}
	a := &Adapter{
		hits:        counter("hits_total", "Requests answered from the cache", "kind"),
		misses:      counter("misses_total", "Requests that needed the source", "kind"),
		sourceCalls: counter("source_calls_total", "Sub-requests issued to the source", "kind"),
		staleWrites: counter("stale_writes_total", "Source results discarded because the entry was flushed meanwhile", "kind"),
		evicts:      counter("evictions_total", "Slots removed from the store by reason", "reason"),
		flushes:     counter("flushes_total", "Flush passes, by whether an earlier marker stopped the walk", "short_circuit"),
		flushWalk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "flush_visited_slots",
			Help:        "Slots visited by one flush pass",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
		}),
		slots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_slots",
			Help:        "Number of occupied slots (entries and markers)",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.sourceCalls, a.staleWrites, a.evicts, a.flushes, a.flushWalk, a.slots)
	return a
}

// Hit increments the hit counter for kind.
func (a *Adapter) Hit(kind cache.RequestKind) { a.hits.WithLabelValues(kind.String()).Inc() }

// Miss increments the miss counter for kind.
func (a *Adapter) Miss(kind cache.RequestKind) { a.misses.WithLabelValues(kind.String()).Inc() }

// SourceCall increments the source call counter for kind.
func (a *Adapter) SourceCall(kind cache.RequestKind) {
	a.sourceCalls.WithLabelValues(kind.String()).Inc()
}

// StaleWrite increments the discarded result counter for kind.
func (a *Adapter) StaleWrite(kind cache.RequestKind) {
	a.staleWrites.WithLabelValues(kind.String()).Inc()
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Flush records one flush pass.
func (a *Adapter) Flush(visited int, shortCircuit bool) {
	label := "false"
	if shortCircuit {
		label = "true"
	}
	a.flushes.WithLabelValues(label).Inc()
	a.flushWalk.Observe(float64(visited))
}

// Size updates the occupied slot gauge.
func (a *Adapter) Size(slots int) {
	a.slots.Set(float64(slots))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
