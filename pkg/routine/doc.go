/*
Package routine holds the logic shared by the write and read paths.

PrepareSave and PrepareRemove turn a descriptor into a group of
view operations. Saves merge over the stored object (new fields win) and
keep the secondary views exact: each indexed field has one row for its
current value, and the row of a value the document no longer holds is
deleted explicitly.

Get reads the views. Before reading it asks a Forwarder to project the
pending writes of the collection scope, so a read issued right after a save
observes it. Filtered reads go through the secondary view of the filtered
field to collect document ids, then fetch those documents from the main
view. A filter that matches nothing yields ErrEmptyResult.
*/
package routine
