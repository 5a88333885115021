/*
Package storage is the column store adapter: tables with partition and
clustering key columns, addressed by key prefix, kept in BoltDB or Pebble.

# Tables

A TableDef names the key columns. Rows are stored under a key built from
the column values in declaration order with the cockroach order-preserving
encoding, so that

  - a statement whose keys name a leading subset of the columns addresses a
    contiguous key range, and
  - rows come back ordered by their clustering columns, numerically for
    numbers and bytewise for strings.

	table channel_message__mainview (channel, message)

	  [enc(ch1)][enc(m1)] -> {"k":{"channel":"ch1","message":"m1"},"v":<cipher>}
	  [enc(ch1)][enc(m2)] -> ...
	  [enc(ch2)][enc(m9)] -> ...

	select keys {channel: ch1} -> prefix scan over [enc(ch1)]

Writes need the full key. Selects and deletes take any prefix; a delete
with a partial key removes the whole range.

# Statements

Execute runs one statement. ExecuteIsolated runs a batch in a single
transaction (bolt) or an atomic batch (pebble): every write lands or none
does. ExecuteGroup runs independent statements and joins the failures.

A statement against a table that was never created fails with a
*TableMissingError, matched by errors.Is(err, ErrTableMissing).
MissingTables collects every missing table of a joined error. That error
is the one failure callers recover from, by creating the table and trying
again; the adapter itself never retries.

# Options

	TTL        rows expire after the duration and are skipped by reads
	Where      filters on key columns (=, !=, <, <=, >, >=, in)
	Order      asc (default) or desc
	Limit      page size; a cut-short result carries a PageToken
	PageToken  resumes after the last row of the previous page

Expired rows are filtered on read and are not compacted eagerly.

Page tokens are the last key of the page, base64url encoded. They are only
valid against the table and key prefix that produced them.

# Rows

The stored value is a JSON envelope carrying the key values (so a scan can
return them without decoding the key), the opaque row value and the
expiry:

	{"k": {"channel": "ch1", "message": "m1"}, "v": "<base64>", "e": <unix nanos>}

# Backends

	┌──────────── BoltStore ────────────┐   ┌──────────── PebbleStore ───────────┐
	│  <dataDir>/burrow.db              │   │  <dataDir>/burrow.pebble/           │
	│                                   │   │                                     │
	│  bucket __tables                  │   │  'c' + name       -> TableDef       │
	│    name -> TableDef               │   │  't' + enc(name) + key -> envelope  │
	│  bucket <table>                   │   │                                     │
	│    key  -> envelope               │   │  catalog loaded into memory on open │
	│                                   │   │  isolated batches via pebble.Batch  │
	│  isolated batches via db.Update   │   │  range deletes via DeleteRange      │
	└───────────────────────────────────┘   └─────────────────────────────────────┘

Both implement Store identically and are exercised by the same tests.
Creating a table is idempotent in both.

Every statement is counted in metrics.StatementsTotal and timed in
metrics.StatementDuration.
*/
package storage
