package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerDriftCounter    prometheus.Counter
	idempotencyCounter    *prometheus.CounterVec
	urgentOrdersGauge     prometheus.Gauge
	orderTransitionCount  *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerDriftCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Number of times an exchange balance diverged from its ledger net",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		urgentOrdersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orders_urgent_unreviewed",
			Help: "Current number of unreviewed orders older than the urgency threshold",
		})

		orderTransitionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order lifecycle transitions",
		}, []string{"action", "status"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerDriftCounter,
			idempotencyCounter,
			urgentOrdersGauge,
			orderTransitionCount,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerDrift() {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func SetUrgentOrders(count int64) {
	if urgentOrdersGauge == nil {
		return
	}
	urgentOrdersGauge.Set(float64(count))
}

func IncrementOrderTransition(action, status string) {
	if orderTransitionCount == nil {
		return
	}
	orderTransitionCount.WithLabelValues(action, status).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
