package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	medrecRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medrec_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	medrecRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medrec_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	medrecTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medrec_transactions_total",
		Help: "Prepared and submitted ledger transactions by type and outcome.",
	}, []string{"type", "outcome"})

	medrecViewTokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medrec_view_tokens_issued_total",
		Help: "Total patient view tokens issued.",
	})

	medrecHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medrec_health_checks_total",
		Help: "Total dependency health probes by probe and result.",
	}, []string{"probe", "result"})

	medrecAnchorRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medrec_anchor_fetch_retries_total",
		Help: "Total recent-blockhash fetch retries.",
	})

	medrecRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medrec_rate_limited_total",
		Help: "Total requests rejected by the per-IP rate limiter.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		medrecRequestsTotal.WithLabelValues(method, path, status).Inc()
		medrecRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransaction records a prepare or submit outcome for a transaction type.
func RecordTransaction(txType, outcome string) {
	medrecTransactionsTotal.WithLabelValues(txType, outcome).Inc()
}

// RecordViewTokenIssued records an issued view token.
func RecordViewTokenIssued() {
	medrecViewTokensIssued.Inc()
}

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(probe string, success bool) {
	if success {
		medrecHealthChecksTotal.WithLabelValues(probe, "success").Inc()
	} else {
		medrecHealthChecksTotal.WithLabelValues(probe, "failure").Inc()
	}
}

// RecordAnchorRetry records a blockhash fetch retry. Its signature matches
// signing.RetryFunc.
func RecordAnchorRetry(int, error) {
	medrecAnchorRetries.Inc()
}
