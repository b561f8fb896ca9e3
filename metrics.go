package voiceinfo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the edge's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	upstreamFetches  *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	imageProbes      *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
}

// NewMetrics registers the edge collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_requests_total",
				Help: "Requests handled by the edge router, labeled by route and agent kind.",
			},
			[]string{"route", "agent"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_cache_lookups_total",
				Help: "Response cache lookups, labeled by result.",
			},
			[]string{"result"},
		),
		upstreamFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_upstream_fetches_total",
				Help: "Content API fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		upstreamDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edge_upstream_fetch_duration_seconds",
				Help:    "Latency of content API fetches.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
			},
		),
		imageProbes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_image_probes_total",
				Help: "Image candidate probes, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edge_fallback_documents_total",
				Help: "Generic share documents served instead of a post preview, labeled by reason.",
			},
			[]string{"reason"},
		),
	}
}

// ObserveRequest counts a routed request.
func (m *Metrics) ObserveRequest(route, agent string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, agent).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveUpstream records one content API fetch.
func (m *Metrics) ObserveUpstream(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamFetches.WithLabelValues(outcome).Inc()
	m.upstreamDuration.Observe(d.Seconds())
}

// ObserveImageProbe counts a probed image candidate.
func (m *Metrics) ObserveImageProbe(valid bool) {
	if m == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.imageProbes.WithLabelValues(outcome).Inc()
}

// ObserveFallback counts a fallback document and why it was served.
func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}
