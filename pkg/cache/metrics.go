package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	HitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_cache_hits_total",
		Help: "Tick cache lookups that found a live entry",
	}, []string{"cache"})

	MissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_cache_misses_total",
		Help: "Tick cache lookups that found nothing or an expired entry",
	}, []string{"cache"})

	SetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_cache_sets_total",
		Help: "Writes accepted by the cache",
	}, []string{"cache"})

	RejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execgw_cache_rejected_total",
		Help: "Writes dropped by ristretto admission or a full set buffer",
	}, []string{"cache"})

	KeysEvicted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execgw_cache_keys_evicted",
		Help: "Keys evicted since the cache was created, as reported by ristretto",
	}, []string{"cache"})

	HitRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "execgw_cache_hit_ratio",
		Help: "Ristretto hit ratio since the cache was created",
	}, []string{"cache"})
)
