/*
Package manager is the front door of a burrow node.

A write is accepted once its descriptor has been appended to the event
store and the task store in one isolated batch. The manager then pushes a
trigger naming the collection path and returns the opID; the projector
applies the write to the views later.

	Save/Remove ──▶ encrypt ──▶ append (event + task) ──▶ trigger ──▶ opID
	                                    │
	                        projector ◀─┘ (async, per path, opID order)

	Get ──▶ forward scope (drain pending tasks) ──▶ main view / index lookup

Before the append, every failure is returned to the caller. After it,
failures are retried by the trigger broker, and triggers lost in a crash
are recovered by FastForward, which Start runs once and the reconciler
runs on a schedule.

Start also runs the notice fan-out when notices are enabled. Subscribers
receive a projector.Notice per applied task; slow subscribers miss notices.
*/
package manager
