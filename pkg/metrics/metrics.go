package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store adapter metrics
	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_store_statements_total",
			Help: "Statements executed against the column store by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	StatementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_store_statement_duration_seconds",
			Help:    "Statement latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Creation gate metrics
	TableCreationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_table_creations_total",
			Help: "Table creations issued by outcome",
		},
		[]string{"outcome"},
	)

	TableCreationWaiters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_table_creation_waiters_total",
			Help: "Callers that joined an in-flight table creation",
		},
	)

	TableCreationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_table_creations_in_flight",
			Help: "Table creations currently holding an admission slot",
		},
	)

	// Projection metrics
	TasksApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_tasks_applied_total",
			Help: "Task store entries applied to the views by action",
		},
		[]string{"action"},
	)

	TaskPendingRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_task_pending_retries_total",
			Help: "Task applications retried after a table creation",
		},
	)

	DrainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_drain_duration_seconds",
			Help:    "Time taken to drain a path in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	FastForwardPaths = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_fast_forward_paths_total",
			Help: "Paths re-triggered by task store recovery sweeps",
		},
	)

	TaskStoreBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_task_store_backlog",
			Help: "Task store entries not yet projected",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_reconciliation_duration_seconds",
			Help:    "Time taken by a scheduled task store sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reconciliation_cycles_total",
			Help: "Scheduled task store sweeps run",
		},
	)

	// Broker metrics
	BrokerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_broker_messages_total",
			Help: "Broker messages by queue and event",
		},
		[]string{"queue", "event"},
	)

	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_requests_total",
			Help: "Document requests by action and status",
		},
		[]string{"action", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_request_duration_seconds",
			Help:    "Document request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(StatementsTotal)
	prometheus.MustRegister(StatementDuration)
	prometheus.MustRegister(TableCreationsTotal)
	prometheus.MustRegister(TableCreationWaiters)
	prometheus.MustRegister(TableCreationsInFlight)
	prometheus.MustRegister(TasksApplied)
	prometheus.MustRegister(TaskPendingRetries)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(FastForwardPaths)
	prometheus.MustRegister(TaskStoreBacklog)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(BrokerMessagesTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
