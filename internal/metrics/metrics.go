// Package metrics provides Prometheus instrumentation for the fraud
// detection engine.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nexus",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsScoredTotal counts scored events by source type and risk level.
	EventsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "events_scored_total",
			Help:      "Total events scored, by source type and resulting risk level.",
		},
		[]string{"source", "level"},
	)

	// FlaggedEventsTotal counts events classified above the low tier.
	FlaggedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "flagged_events_total",
			Help:      "Total events flagged for review, by source type.",
		},
		[]string{"source"},
	)

	// InvalidEventsTotal counts submissions rejected at validation.
	InvalidEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "invalid_events_total",
			Help:      "Total event submissions rejected before scoring.",
		},
		[]string{"source"},
	)

	// ScoringDuration observes the end-to-end submit latency.
	ScoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nexus",
			Name:      "scoring_duration_seconds",
			Help:      "Time to validate, score and classify one event.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
		},
		[]string{"source"},
	)

	// ActiveFeedObservers tracks currently subscribed alert-feed observers.
	ActiveFeedObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nexus",
			Name:      "active_feed_observers",
			Help:      "Number of currently subscribed alert feed observers.",
		},
	)

	// DroppedObserversTotal counts observers removed for falling behind.
	DroppedObserversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "dropped_observers_total",
			Help:      "Total observers dropped because their queue overflowed.",
		},
	)

	// AlertsPublishedTotal counts alert records fanned out to the feed.
	AlertsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "alerts_published_total",
			Help:      "Total alert records published to the broadcast hub.",
		},
	)

	// HeartbeatsSentTotal counts heartbeat fan-outs.
	HeartbeatsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "heartbeats_sent_total",
			Help:      "Total heartbeat events fanned out to observers.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventsScoredTotal,
		FlaggedEventsTotal,
		InvalidEventsTotal,
		ScoringDuration,
		ActiveFeedObservers,
		DroppedObserversTotal,
		AlertsPublishedTotal,
		HeartbeatsSentTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
