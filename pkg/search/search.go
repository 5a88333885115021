package search

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/btree"
)

// Index is a full-text index over the FullSearchIndex fields of documents
type Index interface {
	Index(ctx context.Context, obj map[string]any, schema types.Schema, p types.Path) error
	Update(ctx context.Context, obj map[string]any, schema types.Schema, p types.Path) error
	Delete(ctx context.Context, schema types.Schema, p types.Path) error

	// Search returns the documents under scope containing every term of query
	Search(ctx context.Context, query string, scope types.Path) ([]types.Document, error)
}

type entry struct {
	path   string
	terms  map[string]struct{}
	object map[string]any
}

// Memory is an in-process Index. Documents are kept ordered by path so a
// collection scope is a contiguous range.
type Memory struct {
	mu   sync.RWMutex
	docs *btree.BTreeG[*entry]
}

// NewMemory creates an empty in-process index
func NewMemory() *Memory {
	return &Memory{
		docs: btree.NewG(16, func(a, b *entry) bool { return a.path < b.path }),
	}
}

// Index adds or replaces a document
func (m *Memory) Index(_ context.Context, obj map[string]any, schema types.Schema, p types.Path) error {
	if len(schema.FullSearchIndex) == 0 {
		return nil
	}

	terms := make(map[string]struct{})
	for _, field := range schema.FullSearchIndex {
		s, ok := obj[field].(string)
		if !ok {
			continue
		}
		for _, t := range tokenize(s) {
			terms[t] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs.ReplaceOrInsert(&entry{path: p.String(), terms: terms, object: types.Merge(nil, obj)})
	return nil
}

// Update replaces a document; the object is already merged by the caller
func (m *Memory) Update(ctx context.Context, obj map[string]any, schema types.Schema, p types.Path) error {
	return m.Index(ctx, obj, schema, p)
}

// Delete removes a document
func (m *Memory) Delete(_ context.Context, _ types.Schema, p types.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs.Delete(&entry{path: p.String()})
	return nil
}

// Search matches documents containing all query terms
func (m *Memory) Search(_ context.Context, query string, scope types.Path) ([]types.Document, error) {
	want := tokenize(query)
	prefix := scope.CollectionScope().String() + "/"

	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := []types.Document{}
	m.docs.AscendGreaterOrEqual(&entry{path: prefix}, func(e *entry) bool {
		if !strings.HasPrefix(e.path, prefix) {
			return false
		}
		// Only direct children of the scope, not documents of nested collections
		if strings.Count(e.path[len(prefix):], "/") > 0 {
			return true
		}
		for _, t := range want {
			if _, ok := e.terms[t]; !ok {
				return true
			}
		}
		docs = append(docs, types.Document{Path: e.path, Object: types.Merge(nil, e.object)})
		return true
	})
	return docs, nil
}

// Len returns the number of indexed documents
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs.Len()
}

// tokenize splits text into lower-cased words, dropping punctuation and
// whitespace segments.
func tokenize(text string) []string {
	var out []string
	tokens := words.FromString(text)
	for tokens.Next() {
		w := tokens.Value()
		if strings.IndexFunc(w, isWordRune) < 0 {
			continue
		}
		out = append(out, strings.ToLower(w))
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
