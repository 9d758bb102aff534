package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kindred",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
	}, []string{"method", "path", "status"})

	consentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kindred",
		Name:      "consent_transitions_total",
		Help:      "Consent state transitions by outcome.",
	}, []string{"transition"})

	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kindred",
		Name:      "notification_failures_total",
		Help:      "Consent emails that failed to send.",
	})
)

func metricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// observeRequests records per-route latency. The route template (not the
// raw path) is used so codes and ids don't explode label cardinality.
func (s *Server) observeRequests(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}

	requestDuration.WithLabelValues(
		c.Request.Method,
		path,
		strconv.Itoa(c.Writer.Status()),
	).Observe(time.Since(start).Seconds())
}
