package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the chat pipeline and session monitor.

type Metrics struct {
	ChatTurns          *prometheus.CounterVec
	ChatLatency        prometheus.Histogram
	DegradedTurns      prometheus.Counter
	ValidationFailures prometheus.Counter
	ActiveSessions     prometheus.Gauge
	SessionsCompleted  *prometheus.CounterVec
	AlertsRaised       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studybuddy",
			Name:      "chat_turns_total",
			Help:      "Chat turns processed, labeled by coordination strategy.",
		}, []string{"strategy"}),
		ChatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studybuddy",
			Name:      "chat_turn_duration_seconds",
			Help:      "End to end chat turn latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		DegradedTurns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "studybuddy",
			Name:      "chat_turns_degraded_total",
			Help:      "Chat turns that fell back to a degraded response.",
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "studybuddy",
			Name:      "validation_failures_total",
			Help:      "Responses that failed validation.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "studybuddy",
			Name:      "active_sessions",
			Help:      "Live study sessions currently monitored.",
		}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studybuddy",
			Name:      "sessions_finished_total",
			Help:      "Sessions reaching a terminal state, labeled by status.",
		}, []string{"status"}),
		AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studybuddy",
			Name:      "session_alerts_total",
			Help:      "Session alerts raised, labeled by alert type.",
		}, []string{"type"}),
	}
}
