/*
Package projector applies accepted writes to the views.

Every write is first appended to the task store under its collection scope
path and a trigger naming that path is published. The projector consumes
triggers and drains the path's task rows in opID order: each row is
decoded, applied through the routine package, announced on the notice
broker and deleted.

	trigger(path) ──► lock(path) ──► list ≤ BatchSize rows by opID
	                                   │
	                    apply ─► notice ─► delete row
	                                   │
	                    batch full? ──► publish trigger(path) again

Reads drain their own scope synchronously with ForwardCollection. Drains
of one path hold a per-path lock, so a read and a worker never apply the
same rows twice or out of order.

Tasks whose tables did not exist yet are retried once after
PendingRetryDelay; any remaining error rejects the trigger and the broker
delivers it again later. FastForwardTaskStore re-publishes a trigger for
every path that still has rows. It runs at startup and on the reconciler's
schedule, which recovers writes whose trigger was lost.
*/
package projector
