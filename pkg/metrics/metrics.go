package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LifecycleState is 1 for the state a supervised run currently
	// reports and 0 for the others, labelled by run_id and state.
	LifecycleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_lifecycle_state",
			Help: "Current lifecycle state per supervised run (1 = current state, 0 = other states)",
		},
		[]string{"run_id", "state"},
	)

	LiveNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_live_nodes",
			Help: "Total number of live ephemeral nodes currently held by this process",
		},
	)

	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_messages_processed_total",
			Help: "Total number of command messages processed by the command listener, by outcome",
		},
		[]string{"outcome"},
	)

	DiscoveryMembers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_discovery_members",
			Help: "Current membership count per discovered service name",
		},
		[]string{"service"},
	)

	DiscoveryRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_discovery_registrations_total",
			Help: "Total number of discovery registrations attempted, by outcome",
		},
		[]string{"outcome"},
	)

	CoordinatorOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_coordinator_op_duration_seconds",
			Help:    "Duration of coordinator gateway operations in seconds, by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CoordinatorSessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_coordinator_session_events_total",
			Help: "Total number of coordinator session events observed, by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(LifecycleState)
	prometheus.MustRegister(LiveNodesTotal)
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(DiscoveryMembers)
	prometheus.MustRegister(DiscoveryRegistrations)
	prometheus.MustRegister(CoordinatorOpDuration)
	prometheus.MustRegister(CoordinatorSessionEventsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
