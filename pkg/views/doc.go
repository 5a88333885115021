/*
Package views builds the statements behind the logical tables of a
collection path and executes them, creating physical tables on first write.

Every collection path (the collection names of a document path, e.g.
company/channel/message) owns three kinds of tables. One shared table holds
pending work for all paths:

	┌──────────────────── TABLES OF company/channel/message ────────────────────┐
	│                                                                             │
	│  company_channel_message__mainview        current object of each document  │
	│    partition: company, channel                                              │
	│    clustering: message                                                      │
	│    value: encrypted object                                                  │
	│                                                                             │
	│  company_channel_message__index_<field>   one per indexed field             │
	│    partition: company, channel                                              │
	│    clustering: __value, message                                             │
	│    value: empty                                                             │
	│                                                                             │
	│  company_channel_message__events          append-only operation log        │
	│    partition: company, channel, message                                     │
	│    clustering: __opid                                                       │
	│    value: redacted descriptor                                               │
	│                                                                             │
	└─────────────────────────────────────────────────────────────────────────────┘

	┌──────────────────────── global_taskstore ──────────────────────────────────┐
	│    partition: path     the collection scope string, e.g.                   │
	│                        company/<id>/channel/<id>/message                    │
	│    clustering: __opid  time-ordered, so a scope drains in write order       │
	│    value: full descriptor with the encrypted object                         │
	└─────────────────────────────────────────────────────────────────────────────┘

Table names join the collection names with "_". Collection names cannot
contain "_" (see types.ParsePath), so two collection paths never share a
table. A top-level collection has no ancestors; its main view is
partitioned by its own id and its index views by the indexed value.

# Secondary Views

An index row records that a document had a value for a field. Strings are
stored as their SHA-256 (security.HashValue) so index keys never hold
plaintext and stay bounded in size. Numbers and booleans are stored raw and
can be range-queried through the storage Where clause:

	IndexSave(p, "content", "hi")   upsert  {company, channel, __value: sha("hi"), message}
	IndexGet(scope, content = "hi") select  {company, channel, __value: sha("hi")}
	IndexGet(scope, likes >= 10)    select  {company, channel} where __value >= 10

Equality narrows the key prefix. Other operators filter on __value, and
ordering comparisons on strings are rejected since strings are hashed.

A read through a secondary view returns document ids. The caller then reads
the main view with an "in" filter on those ids.

# Ops

An Op pairs a statement with the definition of its table, so the Executor
can create a missing table without knowing where the op came from:

	MainViewSave / MainViewGet / MainViewRemove
	IndexSave    / IndexGet    / IndexRemove
	EventSave
	TaskSave     / TaskList    / TaskRemove / TaskScan

# Executor

The Executor is the only caller of the store for view data. It turns a
missing table into one of three outcomes, depending on the statement:

	select on a missing table   ──► empty result
	delete on a missing table   ──► no-op
	upsert on a missing table   ──► create through the TableCreator
	                                 └─► ErrTableCreationPending

The write that found its table missing is never retried here. The table is
created (normally through registry.Gate, which collapses concurrent
creations) and the caller learns that the write is still pending. The
manager retries the append a bounded number of times; the projector retries
the task after a delay, and otherwise leaves it in the task store for the
next trigger.

Query runs one op. Isolated runs a batch atomically, which the manager uses
to append the event and the task together. Group runs independent ops and,
when several tables are missing, creates all of them concurrently before
reporting the pending error.
*/
package views
