package metrics

import "github.com/prometheus/client_golang/prometheus"

// Feature registry, matching engine and face extractor metrics.
var (
	RegistryTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facereg",
			Name:      "registry_tenants",
			Help:      "Number of tenant scopes held in memory",
		},
	)

	RegistryIdentities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facereg",
			Name:      "registry_identities",
			Help:      "Number of registered identities across all tenants",
		},
	)

	RegistryFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facereg",
			Name:      "registry_flush_total",
			Help:      "Snapshot flushes by outcome",
		},
		[]string{"status"}, // "ok" / "error" / "skipped"
	)

	RegistryFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "facereg",
			Name:      "registry_flush_duration_seconds",
			Help:      "Snapshot flush duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	MatchScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "facereg",
			Name:      "match_scan_duration_seconds",
			Help:      "Candidate scan duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	MatchScanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facereg",
			Name:      "match_scan_total",
			Help:      "Candidate scans by outcome",
		},
		[]string{"outcome"}, // "match" / "no_match" / "no_candidates" / "error"
	)

	MatchComparisonsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "facereg",
			Name:      "match_comparisons_total",
			Help:      "Similarity computations performed by scans",
		},
	)

	ExtractorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facereg",
			Name:      "extractor_requests_total",
			Help:      "Face extractor requests by outcome",
		},
		[]string{"model", "status"},
	)

	ExtractorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facereg",
			Name:      "extractor_request_duration_seconds",
			Help:      "Face extractor request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)
)

var registered bool

// RegisterMetrics registers HTTP, registry, matching and extractor metrics. Must be called once from main.
func RegisterMetrics() {
	if registered {
		return
	}
	registerHTTPMetrics()
	prometheus.MustRegister(RegistryTenants)
	prometheus.MustRegister(RegistryIdentities)
	prometheus.MustRegister(RegistryFlushTotal)
	prometheus.MustRegister(RegistryFlushDuration)
	prometheus.MustRegister(MatchScanDuration)
	prometheus.MustRegister(MatchScanTotal)
	prometheus.MustRegister(MatchComparisonsTotal)
	prometheus.MustRegister(ExtractorRequestsTotal)
	prometheus.MustRegister(ExtractorRequestDuration)
	registered = true
}
