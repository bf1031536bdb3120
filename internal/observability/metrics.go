package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the assignment service.
//
// All metrics register with the default registry and are served by the
// admin server's /metrics endpoint.
type Metrics struct {
	// AssignmentsCreated counts first-time sticky assignments.
	// Labels: character, version, strategy
	AssignmentsCreated *prometheus.CounterVec

	// Reassignments counts explicit operator overrides.
	// Labels: character, version
	Reassignments *prometheus.CounterVec

	// EventsAppended counts assignment events written to the log.
	// Labels: character, event_type
	EventsAppended *prometheus.CounterVec

	// DrawDuration measures strategy draw plus store round trip in seconds.
	// Labels: character
	DrawDuration *prometheus.HistogramVec

	// StoreErrors counts storage failures by operation. The service
	// degrades to the default version when these fire.
	// Labels: operation (get|put|overwrite|append)
	StoreErrors *prometheus.CounterVec

	// HealthScore is the latest distribution health score per character.
	// Labels: character
	HealthScore *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		AssignmentsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aceversion_assignments_created_total",
				Help: "Total sticky assignments created by character, version, and strategy",
			},
			[]string{"character", "version", "strategy"},
		),

		Reassignments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aceversion_reassignments_total",
				Help: "Total explicit reassignments by character and target version",
			},
			[]string{"character", "version"},
		),

		EventsAppended: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aceversion_events_total",
				Help: "Total assignment events appended by character and event type",
			},
			[]string{"character", "event_type"},
		),

		DrawDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aceversion_draw_duration_seconds",
				Help:    "Duration of assignment resolution in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"character"},
		),

		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aceversion_store_errors_total",
				Help: "Total storage failures by operation",
			},
			[]string{"operation"},
		),

		HealthScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aceversion_health_score",
				Help: "Latest distribution health score (0-100) per character",
			},
			[]string{"character"},
		),
	}
}
