package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "edith"

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by outcome (success, invalid_request, quota_exceeded, rate_limit, server_error)",
		},
		[]string{"outcome"},
	)

	chatTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "tokens_total",
			Help:      "Total tokens reported by the completion model",
		},
	)

	upstreamLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of completion calls, including failures",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	governorRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "governor",
			Name:      "rejections_total",
			Help:      "Requests rejected by the per-address rate governor",
		},
	)

	knowledgeUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "knowledge",
			Name:      "updates_total",
			Help:      "Administrative knowledge updates by status (ok, unauthorized, error)",
		},
		[]string{"status"},
	)
)

func observeUpstreamLatency(d time.Duration) {
	upstreamLatencySeconds.Observe(d.Seconds())
}

// RecordGovernorRejection counts one request turned away by the rate governor.
func RecordGovernorRejection() {
	governorRejectionsTotal.Inc()
}

// RecordKnowledgeUpdate counts one administrative update attempt.
func RecordKnowledgeUpdate(status string) {
	knowledgeUpdatesTotal.WithLabelValues(status).Inc()
}
