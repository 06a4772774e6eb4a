package registry

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steeze_cache_hits_total",
			Help: "Resolutions served from a cached variant.",
		},
		[]string{"encoding"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steeze_cache_misses_total",
			Help: "Resolutions that had to compute a variant.",
		},
		[]string{"encoding"},
	)
	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "steeze_cache_evictions_total",
			Help: "Variants dropped by their expiry timer.",
		},
	)
	compressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steeze_cache_compressions_total",
			Help: "Variants derived by compressing the identity variant.",
		},
		[]string{"encoding"},
	)
	cacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steeze_cache_bytes",
			Help: "Bytes held by cached variants.",
		},
	)
	registryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steeze_registry_entries",
			Help: "Registered entries.",
		},
	)
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steeze_resolve_total",
			Help: "Resolve calls by result status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions, compressions, cacheBytes, registryEntries, resolutions)
}
