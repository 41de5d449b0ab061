package residual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("fvkernel.residual")

var (
	// assembliesTotal counts global residual assemblies by result
	assembliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fvkernel_residual_assemblies_total",
		Help: "Global residual assemblies by result",
	}, []string{"result"})

	// assemblyDuration tracks the wall time of a global assembly
	assemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fvkernel_residual_assembly_duration_seconds",
		Help:    "Global residual assembly duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	// elementsAssembled counts element evaluations
	elementsAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fvkernel_residual_elements_total",
		Help: "Element residual evaluations",
	})
)
