package views

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var collections = []string{"company", "channel", "message"}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gate := registry.NewGate(store, registry.Config{
		MaxConcurrentCreations: 2,
		Backoff:                []time.Duration{0},
	})
	return NewExecutor(store, gate)
}

func messagePath(t *testing.T) types.Path {
	t.Helper()
	p, err := types.NewPath(collections, []string{uuid.NewString(), uuid.NewString(), uuid.NewString()})
	require.NoError(t, err)
	return p
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "company_channel_message__mainview", MainViewTable(collections))
	assert.Equal(t, "company_channel_message__index_content", IndexTable(collections, "content"))
	assert.Equal(t, "company_channel_message__events", EventsTable(collections))
	assert.Equal(t, "global_taskstore", TaskStoreDef().Name)
}

func TestTableDefs(t *testing.T) {
	tests := []struct {
		name string
		def  storage.TableDef
		want []string
	}{
		{name: "main view", def: MainViewDef(collections), want: []string{"company", "channel", "message"}},
		{name: "top-level main view", def: MainViewDef([]string{"company"}), want: []string{"company"}},
		{name: "index", def: IndexDef(collections, "content"), want: []string{"company", "channel", "__value", "message"}},
		{name: "top-level index", def: IndexDef([]string{"company"}, "name"), want: []string{"__value", "company"}},
		{name: "events", def: EventsDef(collections), want: []string{"company", "channel", "message", "__opid"}},
		{name: "task store", def: TaskStoreDef(), want: []string{"path", "__opid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.def.Columns())
			assert.NoError(t, tt.def.Validate())
		})
	}
}

func TestIndexValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
		ok    bool
	}{
		{name: "string is hashed", value: "hi", want: security.HashValue("hi"), ok: true},
		{name: "float kept", value: 3.5, want: 3.5, ok: true},
		{name: "int widened", value: 7, want: float64(7), ok: true},
		{name: "bool kept", value: true, want: true, ok: true},
		{name: "object rejected", value: map[string]any{"a": 1}, ok: false},
		{name: "nil rejected", value: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IndexValue(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIndexGet(t *testing.T) {
	scope := messagePath(t).CollectionScope()

	eq, err := IndexGet(scope, types.Where{Field: "content", Op: types.OpEq, Value: "hi"}, storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, security.HashValue("hi"), eq.Stmt.Keys[ValueColumn])
	assert.Nil(t, eq.Stmt.Options.Where)

	in, err := IndexGet(scope, types.Where{Field: "content", Op: types.OpIn, Value: []string{"a", "b"}}, storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, []any{security.HashValue("a"), security.HashValue("b")}, in.Stmt.Options.Where.Value)

	gt, err := IndexGet(scope, types.Where{Field: "likes", Op: types.OpGt, Value: 3}, storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, &types.Where{Field: ValueColumn, Op: types.OpGt, Value: float64(3)}, gt.Stmt.Options.Where)

	_, err = IndexGet(scope, types.Where{Field: "content", Op: types.OpLt, Value: "b"}, storage.Options{})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestQueryMissingTable(t *testing.T) {
	ctx := context.Background()
	exec := newExecutor(t)
	p := messagePath(t)

	rs, err := exec.Query(ctx, MainViewGet(p, storage.Options{}))
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)

	_, err = exec.Query(ctx, MainViewRemove(p))
	require.NoError(t, err)

	_, err = exec.Query(ctx, MainViewSave(p, []byte("obj"), 0))
	assert.ErrorIs(t, err, ErrTableCreationPending)

	// The write was not applied, but a retry now succeeds
	rs, err = exec.Query(ctx, MainViewGet(p, storage.Options{}))
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)

	_, err = exec.Query(ctx, MainViewSave(p, []byte("obj"), 0))
	require.NoError(t, err)
	rs, err = exec.Query(ctx, MainViewGet(p, storage.Options{}))
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, "obj", string(rs.Rows[0].Value))
}

func TestGroupCreatesAllMissingTables(t *testing.T) {
	ctx := context.Background()
	exec := newExecutor(t)
	p := messagePath(t)

	content, err := IndexSave(p, "content", "hi", 0)
	require.NoError(t, err)
	likes, err := IndexSave(p, "likes", 3, 0)
	require.NoError(t, err)
	stale, err := IndexRemove(p, "title", "old")
	require.NoError(t, err)

	ops := []Op{MainViewSave(p, []byte("obj"), 0), content, likes, stale}
	err = exec.Group(ctx, ops)
	assert.ErrorIs(t, err, ErrTableCreationPending)

	tables, err := exec.Store().Tables(ctx)
	require.NoError(t, err)
	var created []string
	for _, def := range tables {
		created = append(created, def.Name)
	}
	assert.ElementsMatch(t, []string{
		MainViewTable(collections),
		IndexTable(collections, "content"),
		IndexTable(collections, "likes"),
	}, created, "tables only deleted from are not created")

	require.NoError(t, exec.Group(ctx, ops))
}

func TestIsolatedAppend(t *testing.T) {
	ctx := context.Background()
	exec := newExecutor(t)
	p := messagePath(t)

	d, err := types.NewRemove(p, types.Schema{})
	require.NoError(t, err)
	ops := []Op{
		EventSave(d, []byte("{}")),
		TaskSave(p.CollectionScope().String(), d.OpID, []byte("{}"), 0),
	}

	// Each attempt surfaces at most the first missing table
	for attempt := 0; attempt < 3; attempt++ {
		if err = exec.Isolated(ctx, ops); err == nil {
			break
		}
		require.ErrorIs(t, err, ErrTableCreationPending)
	}
	require.NoError(t, err)

	rs, err := exec.Query(ctx, TaskList(p.CollectionScope().String(), 10))
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, d.OpID, rs.Rows[0].Keys[OpIDColumn])
}

func TestTaskListOrderAndScan(t *testing.T) {
	ctx := context.Background()
	exec := newExecutor(t)
	require.NoError(t, exec.Store().CreateTable(ctx, TaskStoreDef()))

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, types.NewOpID())
	}
	// Insert newest first; reads must still come back in opID order
	for i := len(ids) - 1; i >= 0; i-- {
		_, err := exec.Query(ctx, TaskSave("a/"+uuid.Nil.String()+"/b", ids[i], nil, 0))
		require.NoError(t, err)
	}
	_, err := exec.Query(ctx, TaskSave("other", types.NewOpID(), nil, 0))
	require.NoError(t, err)

	rs, err := exec.Query(ctx, TaskList("a/"+uuid.Nil.String()+"/b", 3))
	require.NoError(t, err)
	require.Len(t, rs.Rows, 3)
	for i, row := range rs.Rows {
		assert.Equal(t, ids[i], row.Keys[OpIDColumn])
	}

	seen := 0
	token := ""
	for {
		rs, err := exec.Query(ctx, TaskScan(2, token))
		require.NoError(t, err)
		seen += len(rs.Rows)
		if token = rs.PageToken; token == "" {
			break
		}
	}
	assert.Equal(t, 6, seen)
}
