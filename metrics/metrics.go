// Package metrics provides Prometheus metrics for backend resolution and
// extension lifecycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resolution metrics
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backplane_candidate_probes_total",
			Help: "Total number of candidate initializations by outcome",
		},
		[]string{"capability", "candidate", "outcome"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backplane_resolutions_total",
			Help: "Total number of capability resolutions by result",
		},
		[]string{"capability", "result"},
	)

	resolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backplane_resolution_duration_seconds",
			Help:    "Time spent probing candidates of a capability",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"capability"},
	)

	openInstances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backplane_open_instances",
			Help: "Number of resolved backend instances not yet closed",
		},
		[]string{"capability", "candidate"},
	)

	// Extension lifecycle metrics
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backplane_extension_transitions_total",
			Help: "Total number of extension lifecycle operations by result",
		},
		[]string{"operation", "result"},
	)

	extensionStates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backplane_extensions",
			Help: "Number of extensions per lifecycle state",
		},
		[]string{"state"},
	)
)

// RecordProbe records the outcome of one candidate initialization.
func RecordProbe(capability, candidate, outcome string) {
	probesTotal.WithLabelValues(capability, candidate, outcome).Inc()
}

// RecordResolution records a finished resolution.
func RecordResolution(capability, result string, d time.Duration) {
	resolutionsTotal.WithLabelValues(capability, result).Inc()
	resolutionDuration.WithLabelValues(capability).Observe(d.Seconds())
}

// InstanceOpened tracks a newly accepted backend.
func InstanceOpened(capability, candidate string) {
	openInstances.WithLabelValues(capability, candidate).Inc()
}

// InstanceClosed tracks a released backend.
func InstanceClosed(capability, candidate string) {
	openInstances.WithLabelValues(capability, candidate).Dec()
}

// RecordTransition records a lifecycle operation. result is "ok", "illegal"
// or "failed".
func RecordTransition(operation, result string) {
	transitionsTotal.WithLabelValues(operation, result).Inc()
}

// ExtensionStateChanged moves one extension between state gauges. An empty
// from or to means the extension entered or left the manager.
func ExtensionStateChanged(from, to string) {
	if from != "" {
		extensionStates.WithLabelValues(from).Dec()
	}
	if to != "" {
		extensionStates.WithLabelValues(to).Inc()
	}
}

// Handler returns the HTTP handler exposing all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
