/*
Package registry coordinates physical table creation.

Tables are created lazily, the first time a write finds its table missing.
Many writers can hit the same missing table at once, so the Gate makes sure
only one of them issues the DDL while the rest wait for its outcome:

	unstarted ──► running ──► done
	                 │
	                 └──────► failed ──► (next caller retries)

A creator must first take one of MaxConcurrentCreations admission slots.
Slots are handed out in arrival order, and statements are further paced by
a token bucket. Each creation tries the Backoff ladder (by default
immediately, then after 1s, 2s, 5s and 10s) before giving up.

Callers that find a table already done wait SettleInterval before returning,
which covers stores that report a table missing briefly after creating it.

The gate never retries the enclosing write. Callers report that creation
is pending and leave the retry to the projector.

# Flow

	 writer A                writer B                 Gate                 Creator
	    │                       │                      │                      │
	    │ CreateTable(t) ──────────────────────────────►  unstarted → running │
	    │                       │                      │  go run(detached ctx)│
	    │                       │ CreateTable(t) ──────►  running: wait       │
	    │                       │                      │  slot ◄── semaphore  │
	    │                       │                      │  token ◄── limiter   │
	    │                       │                      │  CreateTable(def) ───►
	    │                       │                      │ ◄──────────── ok ────│
	    │ ◄──── nil ────────────┼──────────────────────   done, close(done)   │
	    │                       │ ◄──── nil ───────────│                      │

The creation runs in its own goroutine on a context detached from the
caller that started it. Every caller, the first one included, waits on the
shared outcome or on its own context, whichever ends first. A caller that
gives up only abandons its wait; the creation completes for the others.

# States

	unstarted   no caller has asked for the table
	running     a creation is in flight; callers wait on it
	done        created, or found in the store catalog at startup
	failed      the ladder was exhausted; the error is shared with every
	            waiter and the next caller starts a new creation

MarkCreated seeds done tables from the store catalog, so a restart does
not re-issue DDL for existing tables.

# Metrics

	burrow_table_creations_total{outcome}   created or failed
	burrow_table_creations_in_flight        creations holding a slot
	burrow_table_creation_waiters_total     callers that joined a running creation
*/
package registry
