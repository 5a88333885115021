package search

import (
	"context"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schema = types.Schema{FullSearchIndex: []string{"content", "title"}}

func doc(t *testing.T, scope types.Path) types.Path {
	t.Helper()
	return scope.Child(uuid.NewString())
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "Hello, World!", want: []string{"hello", "world"}},
		{in: "  spaced   out ", want: []string{"spaced", "out"}},
		{in: "v2 release", want: []string{"v2", "release"}},
		{in: "...", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestMemorySearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	scope, err := types.NewPath([]string{"channel", "message"}, []string{uuid.NewString()})
	require.NoError(t, err)
	other, err := types.NewPath([]string{"channel", "message"}, []string{uuid.NewString()})
	require.NoError(t, err)

	hello := doc(t, scope)
	bye := doc(t, scope)
	elsewhere := doc(t, other)

	require.NoError(t, m.Index(ctx, map[string]any{"content": "Hello brave world"}, schema, hello))
	require.NoError(t, m.Index(ctx, map[string]any{"content": "bye world", "title": "Farewell"}, schema, bye))
	require.NoError(t, m.Index(ctx, map[string]any{"content": "hello world"}, schema, elsewhere))

	docs, err := m.Search(ctx, "world", scope)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = m.Search(ctx, "HELLO world", scope)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, hello.String(), docs[0].Path)

	docs, err = m.Search(ctx, "farewell", scope)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, bye.String(), docs[0].Path)

	require.NoError(t, m.Update(ctx, map[string]any{"content": "goodbye"}, schema, bye))
	docs, err = m.Search(ctx, "farewell", scope)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, m.Delete(ctx, schema, hello))
	docs, err = m.Search(ctx, "hello", scope)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 2, m.Len())
}

func TestMemorySkipsUnindexedSchema(t *testing.T) {
	m := NewMemory()
	scope, err := types.ParsePath("message")
	require.NoError(t, err)

	require.NoError(t, m.Index(context.Background(), map[string]any{"content": "x"}, types.Schema{}, doc(t, scope)))
	assert.Equal(t, 0, m.Len())
}
