package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Geometry metrics
	AreaComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rooftrace",
		Subsystem: "area",
		Name:      "computations_total",
		Help:      "Area computations by the fallback tier that produced the result",
	}, []string{"method"})

	AreaFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rooftrace",
		Subsystem: "area",
		Name:      "fallbacks_total",
		Help:      "Area tiers that failed and handed over to the next tier",
	}, []string{"method"})

	// Capture session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rooftrace",
		Subsystem: "capture",
		Name:      "active_sessions",
		Help:      "Capture sessions currently held in memory",
	})

	RejectedPoints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rooftrace",
		Subsystem: "capture",
		Name:      "rejected_points_total",
		Help:      "Points dropped by the capture store",
	}, []string{"reason"})

	CachedResults = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rooftrace",
		Subsystem: "simulation",
		Name:      "cached_results",
		Help:      "Simulation results held for live sessions, as of the last cache cleanup",
	})

	// Simulation endpoint metrics
	simulationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rooftrace",
		Subsystem: "simulation",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to the simulation endpoint",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})
)

// ObserveSimulation records the latency of a simulation call
func ObserveSimulation(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	simulationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
