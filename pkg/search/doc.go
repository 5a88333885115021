/*
Package search defines the full-text index consulted by reads that ask for
a full search, and ships an in-process implementation.

The routine keeps the index in step with the views after each applied task:
a save updates the document's entry from its merged object, a remove
deletes it. Only the fields named in Schema.FullSearchIndex are indexed.
Index failures are logged by the caller and never fail the write.

Memory keeps entries in a btree ordered by document path, so the documents
of a collection scope form one contiguous range. Text is segmented into
words with Unicode word boundaries (UAX #29) and lowercased; a query
matches a document when every query term appears in it.

Memory lives in the process. It is rebuilt only from tasks applied by that
process and starts empty after a restart.
*/
package search
