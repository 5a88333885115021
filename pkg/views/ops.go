package views

import (
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Op pairs a statement with the definition of the table it targets, so a
// missing table can be created from the op alone.
type Op struct {
	Def  storage.TableDef
	Stmt storage.Statement
}

func op(def storage.TableDef, kind storage.StatementKind, keys map[string]any) Op {
	return Op{Def: def, Stmt: storage.Statement{Kind: kind, Table: def.Name, Keys: keys}}
}

func ttl(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// StorageOptions translates request options into statement options
func StorageOptions(o types.Options) storage.Options {
	return storage.Options{
		Order:     o.Order,
		Limit:     o.Limit,
		PageToken: o.PageToken,
	}
}

// MainViewSave overwrites the object of a document
func MainViewSave(p types.Path, enc []byte, ttlSeconds int) Op {
	o := op(MainViewDef(p.Collections), storage.KindUpsert, p.Keys())
	o.Stmt.Value = enc
	o.Stmt.Options.TTL = ttl(ttlSeconds)
	return o
}

// MainViewGet reads one document, or every document of a collection scope
func MainViewGet(p types.Path, opts storage.Options) Op {
	o := op(MainViewDef(p.Collections), storage.KindSelect, p.Keys())
	o.Stmt.Options = opts
	return o
}

// MainViewRemove deletes a document
func MainViewRemove(p types.Path) Op {
	return op(MainViewDef(p.Collections), storage.KindDelete, p.Keys())
}

func indexKeys(p types.Path, field string, value any) (map[string]any, error) {
	key, ok := IndexValue(value)
	if !ok {
		return nil, fmt.Errorf("field %s: value of type %T cannot be indexed", field, value)
	}
	keys := p.Keys()
	keys[ValueColumn] = key
	return keys, nil
}

// IndexSave records that document p has value for field
func IndexSave(p types.Path, field string, value any, ttlSeconds int) (Op, error) {
	keys, err := indexKeys(p, field, value)
	if err != nil {
		return Op{}, err
	}
	o := op(IndexDef(p.Collections, field), storage.KindUpsert, keys)
	o.Stmt.Options.TTL = ttl(ttlSeconds)
	return o, nil
}

// IndexRemove drops the row recording that p had value for field
func IndexRemove(p types.Path, field string, value any) (Op, error) {
	keys, err := indexKeys(p, field, value)
	if err != nil {
		return Op{}, err
	}
	return op(IndexDef(p.Collections, field), storage.KindDelete, keys), nil
}

// IndexGet selects the index rows of a collection scope matching where.
// Equality narrows the key prefix; other operators filter on the value
// column. Ordering comparisons on strings are rejected because strings are
// stored hashed.
func IndexGet(scope types.Path, where types.Where, opts storage.Options) (Op, error) {
	scope = scope.CollectionScope()
	o := op(IndexDef(scope.Collections, where.Field), storage.KindSelect, scope.Keys())
	o.Stmt.Options = opts

	switch where.Op {
	case types.OpEq:
		v, ok := IndexValue(where.Value)
		if !ok {
			return Op{}, invalidFilter(where, "value cannot be indexed")
		}
		o.Stmt.Keys[ValueColumn] = v
		return o, nil

	case types.OpIn:
		list, ok := anyList(where.Value)
		if !ok {
			return Op{}, invalidFilter(where, "in needs a list")
		}
		hashed := make([]any, 0, len(list))
		for _, item := range list {
			v, ok := IndexValue(item)
			if !ok {
				return Op{}, invalidFilter(where, "list item cannot be indexed")
			}
			hashed = append(hashed, v)
		}
		o.Stmt.Options.Where = &types.Where{Field: ValueColumn, Op: types.OpIn, Value: hashed}
		return o, nil

	case types.OpNe:
		v, ok := IndexValue(where.Value)
		if !ok {
			return Op{}, invalidFilter(where, "value cannot be indexed")
		}
		o.Stmt.Options.Where = &types.Where{Field: ValueColumn, Op: types.OpNe, Value: v}
		return o, nil

	case types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		if _, isString := where.Value.(string); isString {
			return Op{}, invalidFilter(where, "range filters need a number")
		}
		v, ok := IndexValue(where.Value)
		if !ok {
			return Op{}, invalidFilter(where, "value cannot be indexed")
		}
		o.Stmt.Options.Where = &types.Where{Field: ValueColumn, Op: where.Op, Value: v}
		return o, nil
	}
	return Op{}, invalidFilter(where, "unknown operator")
}

func anyList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func invalidFilter(w types.Where, reason string) error {
	return &types.ValidationError{Field: "where", Reason: fmt.Sprintf("%s %s: %s", w.Field, w.Op, reason)}
}

// EventSave appends a redacted descriptor to the event log
func EventSave(d *types.Descriptor, redacted []byte) Op {
	keys := d.Path().Keys()
	keys[OpIDColumn] = d.OpID
	o := op(EventsDef(d.Collections), storage.KindUpsert, keys)
	o.Stmt.Value = redacted
	return o
}

// TaskSave queues a serialized descriptor for projection
func TaskSave(path, opID string, payload []byte, ttlSeconds int) Op {
	o := op(TaskStoreDef(), storage.KindUpsert, map[string]any{PathColumn: path, OpIDColumn: opID})
	o.Stmt.Value = payload
	o.Stmt.Options.TTL = ttl(ttlSeconds)
	return o
}

// TaskList reads the oldest pending tasks of path in opID order
func TaskList(path string, limit int) Op {
	o := op(TaskStoreDef(), storage.KindSelect, map[string]any{PathColumn: path})
	o.Stmt.Options = storage.Options{Order: types.OrderAsc, Limit: limit}
	return o
}

// TaskRemove deletes an applied task
func TaskRemove(path, opID string) Op {
	return op(TaskStoreDef(), storage.KindDelete, map[string]any{PathColumn: path, OpIDColumn: opID})
}

// TaskScan pages over the whole task store
func TaskScan(limit int, pageToken string) Op {
	o := op(TaskStoreDef(), storage.KindSelect, map[string]any{})
	o.Stmt.Options = storage.Options{Limit: limit, PageToken: pageToken}
	return o
}
