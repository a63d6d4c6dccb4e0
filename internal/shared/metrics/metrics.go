package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resumate"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30},
		},
		[]string{"method", "route"},
	)

	ScoreComputationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_computations_total",
			Help:      "Total keyword score computations",
		},
	)

	ScoreValue = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_value",
			Help:      "Distribution of computed overlap scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	TuneSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tune_sessions_total",
			Help:      "Tuning sessions by outcome",
		},
		[]string{"outcome"},
	)

	TuneSessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tune_session_duration_seconds",
			Help:      "Tuning session duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		},
	)

	TuneDeltasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tune_deltas_total",
			Help:      "Streamed content deltas received",
		},
	)

	SnapshotOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_operations_total",
			Help:      "Snapshot export/import/reset operations by result",
		},
		[]string{"operation", "result"},
	)

	PeerTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_transfers_total",
			Help:      "Peer transfers by role and final status",
		},
		[]string{"role", "status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			ScoreComputationsTotal,
			ScoreValue,
			TuneSessionsTotal,
			TuneSessionDuration,
			TuneDeltasTotal,
			SnapshotOperationsTotal,
			PeerTransfersTotal,
		)
	})
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
