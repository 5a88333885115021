package routine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/views"
)

// ErrEmptyResult reports a filtered read that matched no document. It is
// not a failure; callers turn it into a zero-count result.
var ErrEmptyResult = errors.New("empty result")

// Result is the answer to a get
type Result struct {
	ResultCount int              `json:"resultCount"`
	Documents   []types.Document `json:"documents,omitempty"`
	PageToken   string           `json:"pageToken,omitempty"`
}

// Get answers a read. Pending writes of the scope are projected first
// through fwd so the read observes every accepted write.
func (r *Routine) Get(ctx context.Context, d *types.Descriptor, fwd Forwarder) (*Result, error) {
	p := d.Path()
	scope := p.CollectionScope()

	if fwd != nil {
		if err := fwd.ForwardCollection(ctx, scope); err != nil {
			return nil, fmt.Errorf("forward %s: %w", scope, err)
		}
	}

	if d.Options.FullSearch {
		return r.fullSearch(ctx, d.Options.Query, scope)
	}

	opts := views.StorageOptions(d.Options)
	if p.IsDocument() {
		return r.mainView(ctx, views.MainViewGet(p, storage.Options{}))
	}
	if d.Options.Where == nil {
		return r.mainView(ctx, views.MainViewGet(scope, opts))
	}

	ids, err := r.matchingIDs(ctx, scope, *d.Options.Where)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmptyResult
	}
	opts.Where = &types.Where{Field: scope.Leaf(), Op: types.OpIn, Value: ids}
	return r.mainView(ctx, views.MainViewGet(scope, opts))
}

// matchingIDs collects the leaf ids of the index rows matching where
func (r *Routine) matchingIDs(ctx context.Context, scope types.Path, where types.Where) ([]any, error) {
	op, err := views.IndexGet(scope, where, storage.Options{})
	if err != nil {
		return nil, err
	}
	rs, err := r.exec.Query(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", op.Def.Name, err)
	}

	leaf := scope.Leaf()
	ids := make([]any, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if id, ok := row.Keys[leaf]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Routine) mainView(ctx context.Context, op views.Op) (*Result, error) {
	rs, err := r.exec.Query(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", op.Def.Name, err)
	}

	collections := op.Def.Columns()
	res := &Result{Documents: make([]types.Document, 0, len(rs.Rows)), PageToken: rs.PageToken}
	for _, row := range rs.Rows {
		obj, err := r.cipher.DecryptObject(row.Value)
		if err != nil {
			return nil, fmt.Errorf("decrypt row of %s: %w", op.Def.Name, err)
		}
		res.Documents = append(res.Documents, types.Document{
			Path:   rowPath(collections, row.Keys).String(),
			Object: obj,
		})
	}
	res.ResultCount = len(res.Documents)
	return res, nil
}

func (r *Routine) fullSearch(ctx context.Context, query string, scope types.Path) (*Result, error) {
	if r.search == nil {
		return nil, &types.ValidationError{Field: "fullSearch", Reason: "no full-text index is configured"}
	}
	docs, err := r.search.Search(ctx, query, scope)
	if err != nil {
		return nil, fmt.Errorf("full search %s: %w", scope, err)
	}
	return &Result{ResultCount: len(docs), Documents: docs}, nil
}

// rowPath rebuilds a document path from the key columns of a main view row
func rowPath(collections []string, keys map[string]any) types.Path {
	docs := make([]string, len(collections))
	for i, c := range collections {
		docs[i], _ = keys[c].(string)
	}
	return types.Path{Collections: collections, Documents: docs}
}
