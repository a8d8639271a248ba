package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the tracker's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stridetrack",
			Subsystem: "ingest",
			Name:      "samples_total",
			Help:      "Position samples seen by the tracker, by outcome.",
		},
		[]string{"result"},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stridetrack",
			Subsystem: "sessions",
			Name:      "total",
			Help:      "Sessions started and completed.",
		},
		[]string{"activity_type", "outcome"},
	)

	sessionDistance = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stridetrack",
			Subsystem: "sessions",
			Name:      "distance_meters",
			Help:      "Distance of completed sessions.",
			Buckets:   prometheus.ExponentialBuckets(500, 2, 8), // 500m to 64km
		},
		[]string{"activity_type"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stridetrack",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Sessions currently tracking or paused.",
		},
	)
)

// Sample outcomes.
const (
	SampleAccepted = "accepted"
	SampleNoise    = "noise"
	SampleBaseline = "baseline"
	SampleIgnored  = "ignored"
	SampleError    = "error"
)

func init() {
	Registry.MustRegister(samplesTotal, sessionsTotal, sessionDistance, activeSessions)
}

func RecordSample(result string) {
	samplesTotal.WithLabelValues(result).Inc()
}

func RecordSessionStarted(activityType string) {
	sessionsTotal.WithLabelValues(activityType, "started").Inc()
	activeSessions.Inc()
}

// RecordSessionRestored counts a session brought back from a snapshot.
func RecordSessionRestored(activityType string) {
	sessionsTotal.WithLabelValues(activityType, "restored").Inc()
	activeSessions.Inc()
}

func RecordSessionCompleted(activityType string, distanceMeters float64, failed bool) {
	outcome := "completed"
	if failed {
		outcome = "failed"
	}
	sessionsTotal.WithLabelValues(activityType, outcome).Inc()
	sessionDistance.WithLabelValues(activityType).Observe(distanceMeters)
	activeSessions.Dec()
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
