// Package metrics registers the Prometheus collectors exposed on
// /metrics, generalizing the teacher's httpDuration/httpRequests pair in
// cmd/server/main.go from generic HTTP instrumentation into the
// connection/event/message counters this core actually needs.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "chatcore_http_request_duration_seconds",
			Help: "HTTP request latencies in seconds",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcore_connections_open",
			Help: "Number of live duplex connections",
		},
	)

	ConnectionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_connections_closed_total",
			Help: "Total connections closed, by reason",
		},
		[]string{"reason"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_events_published_total",
			Help: "Total outbound events published by the bus, by event type",
		},
		[]string{"type"},
	)

	MessagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_messages_created_total",
			Help: "Total messages committed to the store, by author kind",
		},
		[]string{"author"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_ai_generations_total",
			Help: "Total AI generations, by outcome",
		},
		[]string{"outcome"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_rate_limited_total",
			Help: "Total commands rejected for exceeding a rate-limit bucket, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPDuration,
		HTTPRequests,
		ConnectionsOpen,
		ConnectionsClosedTotal,
		EventsPublishedTotal,
		MessagesCreatedTotal,
		GenerationsTotal,
		RateLimitedTotal,
	)
}

// GinMiddleware mirrors the teacher's prometheusMiddleware, recording
// request latency and count for every HTTP route gin serves.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		HTTPDuration.WithLabelValues(c.Request.Method, path, statusLabel(status)).Observe(time.Since(start).Seconds())
		HTTPRequests.WithLabelValues(c.Request.Method, path, statusLabel(status)).Inc()
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
