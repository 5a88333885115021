package types

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, raw string) Path {
	t.Helper()
	p, err := ParsePath(raw)
	require.NoError(t, err)
	return p
}

func TestNewOpIDOrdered(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewOpID()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestConstructors(t *testing.T) {
	doc := mustPath(t, "company/"+c1)
	scope := mustPath(t, "company")

	tests := []struct {
		name    string
		build   func() (*Descriptor, error)
		action  Action
		wantErr bool
	}{
		{name: "save", build: func() (*Descriptor, error) {
			return NewSave(doc, map[string]any{"a": 1}, Schema{}, Options{})
		}, action: ActionSave},
		{name: "save on scope", build: func() (*Descriptor, error) {
			return NewSave(scope, map[string]any{"a": 1}, Schema{}, Options{})
		}, wantErr: true},
		{name: "save without object", build: func() (*Descriptor, error) {
			return NewSave(doc, nil, Schema{}, Options{})
		}, wantErr: true},
		{name: "remove", build: func() (*Descriptor, error) {
			return NewRemove(doc, Schema{})
		}, action: ActionRemove},
		{name: "remove on scope", build: func() (*Descriptor, error) {
			return NewRemove(scope, Schema{})
		}, wantErr: true},
		{name: "get scope", build: func() (*Descriptor, error) {
			return NewGet(scope, Schema{}, Options{Order: OrderDesc, Limit: 10})
		}, action: ActionGet},
		{name: "get with bad operator", build: func() (*Descriptor, error) {
			return NewGet(scope, Schema{}, Options{Where: &Where{Field: "a", Op: "like"}})
		}, wantErr: true},
		{name: "get with bad order", build: func() (*Descriptor, error) {
			return NewGet(scope, Schema{}, Options{Order: "up"})
		}, wantErr: true},
		{name: "get with negative limit", build: func() (*Descriptor, error) {
			return NewGet(scope, Schema{}, Options{Limit: -1})
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.build()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			assert.NotEmpty(t, d.OpID)
			assert.False(t, d.CreatedAt.IsZero())
			assert.NoError(t, d.Validate())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Descriptor {
		d, err := NewSave(mustPath(t, "company/"+c1), map[string]any{"a": 1}, Schema{}, Options{})
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{name: "unknown action", mutate: func(d *Descriptor) { d.Action = "batch" }},
		{name: "missing opId", mutate: func(d *Descriptor) { d.OpID = "" }},
		{name: "scope path", mutate: func(d *Descriptor) { d.Documents = nil }},
		{name: "both objects", mutate: func(d *Descriptor) { d.EncObject = []byte("x") }},
		{name: "no object", mutate: func(d *Descriptor) { d.ClearObject = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), ErrValidation)
		})
	}
}

func TestRedactedKeepsMetadataOnly(t *testing.T) {
	d, err := NewSave(mustPath(t, "company/"+c1), map[string]any{"secret": "x"}, Schema{DBSearchIndex: []string{"secret"}}, Options{TTL: 5})
	require.NoError(t, err)

	r := d.Redacted()
	assert.Nil(t, r.ClearObject)
	assert.Nil(t, r.EncObject)
	assert.Equal(t, d.OpID, r.OpID)
	assert.Equal(t, d.Schema, r.Schema)
	assert.NotNil(t, d.ClearObject)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"x"`)
}

func TestDescriptorJSON(t *testing.T) {
	d, err := NewSave(mustPath(t, "company/"+c1), map[string]any{"a": "b"}, Schema{}, Options{Where: &Where{Field: "a", Op: OpEq, Value: "b"}})
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	var back Descriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d.Path(), back.Path())
	assert.Equal(t, d.OpID, back.OpID)
	assert.Equal(t, d.ClearObject, back.ClearObject)
	assert.NoError(t, back.Validate())
}

func TestMerge(t *testing.T) {
	base := map[string]any{"content": "hi", "likes": 1}
	update := map[string]any{"likes": 2, "pinned": true}

	merged := Merge(base, update)
	assert.Equal(t, map[string]any{"content": "hi", "likes": 2, "pinned": true}, merged)
	assert.Equal(t, map[string]any{"content": "hi", "likes": 1}, base)

	assert.Equal(t, map[string]any{"a": 1}, Merge(nil, map[string]any{"a": 1}))
}
