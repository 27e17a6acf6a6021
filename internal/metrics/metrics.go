// Package metrics holds the Prometheus collectors for the request pipeline and the analysis hop.
// All recording methods are safe to call on a nil *Pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup results.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Pipeline groups the collectors recorded while serving uploads.
type Pipeline struct {
	cacheLookups    *prometheus.CounterVec
	cacheWrites     *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration prometheus.Histogram
	backendInFlight prometheus.Gauge
}

// NewPipeline creates the collectors and registers them with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intensity_cache_lookups_total",
				Help: "Fingerprint cache lookups by result.",
			},
			[]string{"result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intensity_cache_writes_total",
				Help: "Fingerprint cache writes by result.",
			},
			[]string{"result"},
		),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intensity_backend_calls_total",
				Help: "Analysis service calls by outcome.",
			},
			[]string{"outcome"},
		),
		backendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intensity_backend_call_duration_seconds",
			Help:    "Latency of analysis service calls, including time spent queued for a slot.",
			Buckets: prometheus.DefBuckets,
		}),
		backendInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intensity_backend_in_flight",
			Help: "Analysis service calls currently holding a concurrency slot.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.cacheLookups, p.cacheWrites, p.backendCalls, p.backendDuration, p.backendInFlight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// CacheLookup counts one lookup outcome.
func (p *Pipeline) CacheLookup(result string) {
	if p == nil {
		return
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

// CacheWrite counts one write attempt.
func (p *Pipeline) CacheWrite(err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.cacheWrites.WithLabelValues(result).Inc()
}

// BackendCall records a finished analysis call.
func (p *Pipeline) BackendCall(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.backendCalls.WithLabelValues(outcome).Inc()
	p.backendDuration.Observe(d.Seconds())
}

// InFlight adjusts the in-flight gauge by delta.
func (p *Pipeline) InFlight(delta float64) {
	if p == nil {
		return
	}
	p.backendInFlight.Add(delta)
}
