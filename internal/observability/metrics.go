package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "access_decisions_total",
		Help:      "Access decisions by outcome",
	}, []string{"outcome"})

	ExtractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "extraction_failures_total",
		Help:      "Signature extraction failures by reason",
	}, []string{"reason"})

	ComparisonErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "comparison_errors_total",
		Help:      "Roster candidates skipped because their signature could not be compared",
	})

	RosterSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "roster_size",
		Help:      "Number of candidates in the last scanned roster",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of extraction and matching stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "access_events_recorded_total",
		Help:      "Access events persisted, by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})

	AccessStreamMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "access_stream_messages",
		Help:      "Messages retained in the ACCESS stream",
	})
)
