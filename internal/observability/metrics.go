package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_http_requests_total",
			Help: "Total number of HTTP requests processed by the sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetches_total",
			Help: "Total number of canonical fetches against the durable store.",
		},
		[]string{"kind", "outcome"},
	)
	cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cache_ops_total",
			Help: "Total number of conversation cache operations.",
		},
		[]string{"op", "outcome"},
	)
	realtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_realtime_events_total",
			Help: "Total number of realtime events by ingestion result.",
		},
		[]string{"result"},
	)
	realtimeDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_realtime_queue_dropped_total",
			Help: "Total number of realtime events dropped on a full subscription queue.",
		},
	)
	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_realtime_subscriptions_active",
			Help: "Number of active realtime subscriptions.",
		},
	)
	transientPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_transient_pruned_total",
			Help: "Total number of transient messages pruned during reconciliation.",
		},
		[]string{"reason"},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_sends_total",
			Help: "Total number of send pipeline executions by outcome.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		fetchesTotal,
		cacheOpsTotal,
		realtimeEventsTotal,
		realtimeDroppedTotal,
		subscriptionsActive,
		transientPrunedTotal,
		sendsTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncFetch(kind, outcome string) {
	fetchesTotal.WithLabelValues(kind, outcome).Inc()
}

func IncCacheOp(op, outcome string) {
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

func IncRealtimeEvent(result string) {
	realtimeEventsTotal.WithLabelValues(result).Inc()
}

func IncRealtimeDropped() {
	realtimeDroppedTotal.Inc()
}

func IncSubscriptionsActive() {
	subscriptionsActive.Inc()
}

func DecSubscriptionsActive() {
	subscriptionsActive.Dec()
}

func IncTransientPruned(reason string) {
	transientPrunedTotal.WithLabelValues(reason).Inc()
}

func IncSend(outcome string) {
	sendsTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
