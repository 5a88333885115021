package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messages = TableDef{
	Name:           "channel_message__mainview",
	PartitionKeys:  []string{"channel"},
	ClusteringKeys: []string{"message"},
}

// backends opens every Store implementation in its own temp dir
func backends(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	peb, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = peb.Close() })

	return map[string]Store{"bolt": bolt, "pebble": peb}
}

func upsert(table string, keys map[string]any, value string) Statement {
	return Statement{Kind: KindUpsert, Table: table, Keys: keys, Value: []byte(value)}
}

func seedMessages(t *testing.T, s Store, channel string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, messages))
	for i := 0; i < n; i++ {
		_, err := s.Execute(ctx, upsert(messages.Name,
			map[string]any{"channel": channel, "message": fmt.Sprintf("m%02d", i)},
			fmt.Sprintf("body-%d", i)))
		require.NoError(t, err)
	}
}

func messageIDs(rs *ResultSet) []string {
	ids := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		ids = append(ids, r.Keys["message"].(string))
	}
	return ids
}

func TestTableMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: "nope"})
			assert.ErrorIs(t, err, ErrTableMissing)

			var tm *TableMissingError
			require.True(t, errors.As(err, &tm))
			assert.Equal(t, "nope", tm.Table)

			_, err = s.Execute(ctx, upsert("nope", map[string]any{"a": "x"}, "v"))
			assert.ErrorIs(t, err, ErrTableMissing)
		})
	}
}

func TestCreateTableIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, messages))
			require.NoError(t, s.CreateTable(ctx, messages))

			defs, err := s.Tables(ctx)
			require.NoError(t, err)
			require.Len(t, defs, 1)
			assert.Equal(t, messages, defs[0])
		})
	}
}

func TestCreateTableRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  TableDef
	}{
		{name: "empty name", def: TableDef{PartitionKeys: []string{"a"}}},
		{name: "reserved name", def: TableDef{Name: "__tables", PartitionKeys: []string{"a"}}},
		{name: "no partition key", def: TableDef{Name: "t"}},
		{name: "duplicate column", def: TableDef{Name: "t", PartitionKeys: []string{"a"}, ClusteringKeys: []string{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.def.Validate())
		})
	}
}

func TestPointReadAndOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seedMessages(t, s, "c1", 1)
			keys := map[string]any{"channel": "c1", "message": "m00"}

			_, err := s.Execute(ctx, upsert(messages.Name, keys, "changed"))
			require.NoError(t, err)

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name, Keys: keys})
			require.NoError(t, err)
			require.Len(t, rs.Rows, 1)
			assert.Equal(t, "changed", string(rs.Rows[0].Value))
			assert.Empty(t, rs.PageToken)

			_, err = s.Execute(ctx, Statement{Kind: KindDelete, Table: messages.Name, Keys: keys})
			require.NoError(t, err)

			rs, err = s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name, Keys: keys})
			require.NoError(t, err)
			assert.Empty(t, rs.Rows)
		})
	}
}

func TestPrefixScanOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seedMessages(t, s, "c1", 5)
			seedMessages(t, s, "c2", 2)

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
				Keys: map[string]any{"channel": "c1"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"m00", "m01", "m02", "m03", "m04"}, messageIDs(rs))

			rs, err = s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
				Keys:    map[string]any{"channel": "c1"},
				Options: Options{Order: types.OrderDesc}})
			require.NoError(t, err)
			assert.Equal(t, []string{"m04", "m03", "m02", "m01", "m00"}, messageIDs(rs))

			// Walk pages of two in both directions
			for _, order := range []types.Order{types.OrderAsc, types.OrderDesc} {
				var got []string
				token := ""
				for page := 0; page < 5; page++ {
					rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
						Keys:    map[string]any{"channel": "c1"},
						Options: Options{Order: order, Limit: 2, PageToken: token}})
					require.NoError(t, err)
					got = append(got, messageIDs(rs)...)
					token = rs.PageToken
					if token == "" {
						break
					}
				}
				assert.Len(t, got, 5, "order %s", order)
				if order == types.OrderAsc {
					assert.Equal(t, "m00", got[0])
				} else {
					assert.Equal(t, "m04", got[0])
				}
			}
		})
	}
}

func TestWhereClause(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		where types.Where
		want  []string
	}{
		{name: "eq", where: types.Where{Field: "message", Op: types.OpEq, Value: "m01"}, want: []string{"m01"}},
		{name: "ne", where: types.Where{Field: "message", Op: types.OpNe, Value: "m01"}, want: []string{"m00", "m02", "m03"}},
		{name: "gt", where: types.Where{Field: "message", Op: types.OpGt, Value: "m01"}, want: []string{"m02", "m03"}},
		{name: "le", where: types.Where{Field: "message", Op: types.OpLe, Value: "m01"}, want: []string{"m00", "m01"}},
		{name: "in", where: types.Where{Field: "message", Op: types.OpIn, Value: []any{"m03", "m00", "zz"}}, want: []string{"m00", "m03"}},
		{name: "absent column", where: types.Where{Field: "other", Op: types.OpEq, Value: "x"}, want: []string{}},
	}

	for name, s := range backends(t) {
		seedMessages(t, s, "c1", 4)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				where := tt.where
				rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
					Keys:    map[string]any{"channel": "c1"},
					Options: Options{Where: &where}})
				require.NoError(t, err)
				assert.Equal(t, tt.want, messageIDs(rs))
			})
		}
	}
}

func TestNumericClusteringOrder(t *testing.T) {
	ctx := context.Background()
	index := TableDef{Name: "item__index_price", PartitionKeys: []string{"__value"}, ClusteringKeys: []string{"item"}}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, index))
			for i, price := range []float64{10, -2, 3.5, 100} {
				_, err := s.Execute(ctx, upsert(index.Name,
					map[string]any{"__value": price, "item": fmt.Sprintf("i%d", i)}, ""))
				require.NoError(t, err)
			}

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: index.Name})
			require.NoError(t, err)
			var prices []float64
			for _, r := range rs.Rows {
				prices = append(prices, r.Keys["__value"].(float64))
			}
			assert.Equal(t, []float64{-2, 3.5, 10, 100}, prices)

			rs, err = s.Execute(ctx, Statement{Kind: KindSelect, Table: index.Name,
				Options: Options{Where: &types.Where{Field: "__value", Op: types.OpGe, Value: 10}}})
			require.NoError(t, err)
			assert.Len(t, rs.Rows, 2)
		})
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, messages))
			stmt := upsert(messages.Name, map[string]any{"channel": "c1", "message": "short"}, "x")
			stmt.Options.TTL = 20 * time.Millisecond
			_, err := s.Execute(ctx, stmt)
			require.NoError(t, err)
			_, err = s.Execute(ctx, upsert(messages.Name, map[string]any{"channel": "c1", "message": "long"}, "y"))
			require.NoError(t, err)

			time.Sleep(50 * time.Millisecond)

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
				Keys: map[string]any{"channel": "c1"}})
			require.NoError(t, err)
			assert.Equal(t, []string{"long"}, messageIDs(rs))
		})
	}
}

func TestRangeDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seedMessages(t, s, "c1", 3)
			seedMessages(t, s, "c2", 2)

			_, err := s.Execute(ctx, Statement{Kind: KindDelete, Table: messages.Name,
				Keys: map[string]any{"channel": "c1"}})
			require.NoError(t, err)

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name})
			require.NoError(t, err)
			assert.Equal(t, []string{"m00", "m01"}, messageIDs(rs))
			assert.Equal(t, "c2", rs.Rows[0].Keys["channel"])
		})
	}
}

func TestKeysMustBePrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, messages))
			_, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
				Keys: map[string]any{"message": "m00"}})
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrTableMissing)

			_, err = s.Execute(ctx, upsert(messages.Name, map[string]any{"channel": "c1"}, "partial"))
			assert.Error(t, err)
		})
	}
}

func TestExecuteIsolatedRollsBack(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, messages))

			err := s.ExecuteIsolated(ctx, []Statement{
				upsert(messages.Name, map[string]any{"channel": "c1", "message": "m1"}, "a"),
				upsert("missing_events", map[string]any{"a": "x"}, "b"),
			})
			assert.ErrorIs(t, err, ErrTableMissing)

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name})
			require.NoError(t, err)
			assert.Empty(t, rs.Rows, "first statement must not be applied")
		})
	}
}

func TestExecuteGroupJoinsFailures(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.CreateTable(ctx, messages))

			err := s.ExecuteGroup(ctx, []Statement{
				upsert(messages.Name, map[string]any{"channel": "c1", "message": "m1"}, "a"),
				upsert("first_missing", map[string]any{"a": "x"}, "b"),
				upsert("second_missing", map[string]any{"a": "x"}, "c"),
				upsert("first_missing", map[string]any{"a": "y"}, "d"),
			})
			require.Error(t, err)
			assert.ElementsMatch(t, []string{"first_missing", "second_missing"}, MissingTables(err))

			rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name})
			require.NoError(t, err)
			assert.Len(t, rs.Rows, 1, "independent statements still apply")
		})
	}
}

func TestMissingTablesWrapped(t *testing.T) {
	err := fmt.Errorf("apply: %w", errors.Join(
		&TableMissingError{Table: "a"},
		errors.New("boom"),
		fmt.Errorf("nested: %w", &TableMissingError{Table: "b"}),
	))
	assert.Equal(t, []string{"a", "b"}, MissingTables(err))
	assert.Nil(t, MissingTables(nil))
	assert.Nil(t, MissingTables(errors.New("other")))
}

func TestPebbleCatalogSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	seedMessages(t, s, "c1", 2)
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()

	rs, err := s.Execute(ctx, Statement{Kind: KindSelect, Table: messages.Name,
		Keys: map[string]any{"channel": "c1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"m00", "m01"}, messageIDs(rs))
}
