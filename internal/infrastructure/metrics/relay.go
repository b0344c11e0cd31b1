package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		relayRequests,
		pollAttempts,
		generationDuration,
	)
}

var (
	relayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Relayed requests by flow (train/generate) and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	pollAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_poll_attempts_total",
			Help: "Prompt status checks issued while waiting for results.",
		},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_generation_duration_seconds",
			Help:    "Time from prompt submission to a terminal poll outcome.",
			Buckets: []float64{2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"outcome"},
	)
)

// Request records the outcome of one train or generate call.
func Request(flow, outcome string) {
	relayRequests.WithLabelValues(norm(flow), norm(outcome)).Inc()
}

func PollAttempt() { pollAttempts.Inc() }

func ObserveGeneration(outcome string, d time.Duration) {
	generationDuration.WithLabelValues(norm(outcome)).Observe(d.Seconds())
}
