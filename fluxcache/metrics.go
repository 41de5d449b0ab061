package fluxcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fvkernel.fluxcache")

var (
	// cacheFillsTotal counts filler evaluations by policy
	cacheFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fvkernel_fluxcache_fills_total",
		Help: "Flux cache entries filled by policy",
	}, []string{"policy"})

	// cacheSweepsTotal counts global sweeps by result
	cacheSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fvkernel_fluxcache_sweeps_total",
		Help: "Global flux cache sweeps by result",
	}, []string{"result"})

	// cacheSweepDuration tracks the wall time of a global sweep
	cacheSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fvkernel_fluxcache_sweep_duration_seconds",
		Help:    "Global flux cache sweep duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
)
