package views

import (
	"encoding/json"
	"strings"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
)

// Reserved column and table names. They are part of the on-disk layout.
const (
	ValueColumn    = "__value"
	OpIDColumn     = "__opid"
	PathColumn     = "path"
	TaskStoreTable = "global_taskstore"
)

func prefix(collections []string) string {
	return strings.Join(collections, "_")
}

// MainViewTable names the current-state table of a collection path
func MainViewTable(collections []string) string {
	return prefix(collections) + "__mainview"
}

// IndexTable names the secondary view of one indexed field
func IndexTable(collections []string, field string) string {
	return prefix(collections) + "__index_" + field
}

// EventsTable names the append-only log of a collection path
func EventsTable(collections []string) string {
	return prefix(collections) + "__events"
}

// split returns the ancestors and the leaf of a collection list
func split(collections []string) ([]string, string) {
	n := len(collections)
	return collections[:n-1], collections[n-1]
}

// MainViewDef keys rows by every collection's document id. Ancestors form
// the partition so a collection scope is one contiguous range.
func MainViewDef(collections []string) storage.TableDef {
	ancestors, leaf := split(collections)
	def := storage.TableDef{Name: MainViewTable(collections)}
	if len(ancestors) == 0 {
		def.PartitionKeys = []string{leaf}
		return def
	}
	def.PartitionKeys = append([]string(nil), ancestors...)
	def.ClusteringKeys = []string{leaf}
	return def
}

// IndexDef keys rows by ancestors, the indexed value and the leaf id
func IndexDef(collections []string, field string) storage.TableDef {
	ancestors, leaf := split(collections)
	def := storage.TableDef{Name: IndexTable(collections, field)}
	if len(ancestors) == 0 {
		def.PartitionKeys = []string{ValueColumn}
		def.ClusteringKeys = []string{leaf}
		return def
	}
	def.PartitionKeys = append([]string(nil), ancestors...)
	def.ClusteringKeys = []string{ValueColumn, leaf}
	return def
}

// EventsDef keys events by document ids then opID
func EventsDef(collections []string) storage.TableDef {
	return storage.TableDef{
		Name:           EventsTable(collections),
		PartitionKeys:  append([]string(nil), collections...),
		ClusteringKeys: []string{OpIDColumn},
	}
}

// TaskStoreDef is the single pending-work table, partitioned by the literal
// collection scope string.
func TaskStoreDef() storage.TableDef {
	return storage.TableDef{
		Name:           TaskStoreTable,
		PartitionKeys:  []string{PathColumn},
		ClusteringKeys: []string{OpIDColumn},
	}
}

// IndexValue converts a field value into its secondary view key. Strings
// are stored as their SHA-256 so arbitrary text yields a bounded key;
// numbers and booleans are kept raw so they stay range-queryable. ok is
// false for values that cannot be indexed.
func IndexValue(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		return security.HashValue(x), true
	case bool:
		return x, true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return nil, false
}
