/*
Package metrics exposes Prometheus metrics and component health.

Metrics are package-level collectors registered in init and served by
Handler on /metrics:

	burrow_store_statements_total{kind,outcome}
	burrow_store_statement_duration_seconds{kind}
	burrow_table_creations_total{outcome}
	burrow_table_creation_waiters_total
	burrow_table_creations_in_flight
	burrow_tasks_applied_total{action}
	burrow_task_pending_retries_total
	burrow_drain_duration_seconds{mode}        mode is trigger or forward
	burrow_fast_forward_paths_total
	burrow_task_store_backlog
	burrow_reconciliation_duration_seconds
	burrow_reconciliation_cycles_total
	burrow_broker_messages_total{queue,event}
	burrow_requests_total{action,status}
	burrow_request_duration_seconds{action}

Timer measures an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DrainDuration, "forward")

The task store backlog is expensive to keep live, so a Collector samples it
on an interval from a BacklogSource.

Health() is the process-wide HealthChecker. Components report themselves
with Update; /health reports unhealthy when any component is, and /ready
stays not_ready until every critical component (store, projector) has
reported healthy.
*/
package metrics
