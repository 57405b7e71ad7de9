package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatefs/gatefs/pkg/gateway/dircache"
)

// RegisterCacheMetrics exports the directory cache counters as gauges. The
// cache keeps its own atomics; the collector reads them at scrape time.
func RegisterCacheMetrics(cache *dircache.Cache) {
	reg := GetRegistry()
	if reg == nil || cache == nil {
		return
	}

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gatefs_dircache_hits_total",
			Help: "Directory cache hits since start",
		}, func() float64 { return float64(cache.Stats().Hits) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gatefs_dircache_misses_total",
			Help: "Directory cache misses since start",
		}, func() float64 { return float64(cache.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gatefs_dircache_entries",
			Help: "Directory cache resident entries",
		}, func() float64 { return float64(cache.Stats().Size) }),
	)
}
