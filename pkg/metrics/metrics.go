// Package metrics holds the Prometheus collectors for the upload path and
// the transcription sweeper.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"strconv"
	"time"
)

var (
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vetscribe_jobs_created_total",
		Help: "Transcription jobs created by uploads and retries",
	})

	// JobsFinished is labelled by terminal status.
	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetscribe_jobs_finished_total",
		Help: "Transcription jobs that reached a terminal status",
	}, []string{"status"})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vetscribe_claim_conflicts_total",
		Help: "Claims lost to another sweeper or to a deleted row",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vetscribe_sweep_duration_seconds",
		Help:    "Duration of one sweep including every transcription in the batch",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	SweepBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vetscribe_sweep_batch_size",
		Help:    "Number of jobs claimed per sweep",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})

	RecognizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vetscribe_recognize_duration_seconds",
		Help:    "Latency of calls to the speech backend",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetscribe_http_requests_total",
		Help: "HTTP requests served",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vetscribe_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Middleware records request counts and latency. The route template is
// used as the path label so job ids never become label values.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
