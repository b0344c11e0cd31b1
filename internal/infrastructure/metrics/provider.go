package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		providerCalls,
		providerLatency,
		providerUp,
	)
}

var (
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_calls_total",
			Help: "Outbound provider calls by operation and HTTP status (0 = transport error).",
		},
		[]string{"op", "code"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_provider_call_duration_seconds",
			Help:    "Outbound provider call latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op"},
	)

	providerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_provider_up",
			Help: "1 when the last provider probe succeeded, 0 otherwise.",
		},
	)
)

func ObserveProviderCall(op string, code int, d time.Duration) {
	providerCalls.WithLabelValues(norm(op), strconv.Itoa(code)).Inc()
	providerLatency.WithLabelValues(norm(op)).Observe(d.Seconds())
}

func SetProviderUp(up bool) {
	if up {
		providerUp.Set(1)
		return
	}
	providerUp.Set(0)
}
