package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddyhealth_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paddyhealth_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})
)

// Metrics records request counts and latency per matched route.
// Unmatched paths are folded into one label to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		requestCount.WithLabelValues(path, method, strconv.Itoa(ctx.Writer.Status())).Inc()
		requestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}
