package routine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/search"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/views"
	"github.com/rs/zerolog"
)

// Forwarder drains the pending writes of a collection scope before a read
type Forwarder interface {
	ForwardCollection(ctx context.Context, scope types.Path) error
}

// Routine turns descriptors into view operations and answers reads
type Routine struct {
	exec   *views.Executor
	cipher *security.Cipher
	search search.Index
	logger zerolog.Logger
}

// New creates a routine. idx may be nil when full search is not configured.
func New(exec *views.Executor, cipher *security.Cipher, idx search.Index) *Routine {
	return &Routine{
		exec:   exec,
		cipher: cipher,
		search: idx,
		logger: log.WithComponent("routine"),
	}
}

// object returns the clear object a save carries
func (r *Routine) object(d *types.Descriptor) (map[string]any, error) {
	if d.ClearObject != nil {
		return d.ClearObject, nil
	}
	if d.EncObject == nil {
		return nil, &types.ValidationError{Field: "object", Reason: "save carries no object"}
	}
	obj, err := r.cipher.DecryptObject(d.EncObject)
	if err != nil {
		return nil, fmt.Errorf("decrypt object of %s: %w", d.OpID, err)
	}
	return obj, nil
}

// current reads the stored object of a document; nil when there is none
func (r *Routine) current(ctx context.Context, p types.Path) (map[string]any, error) {
	rs, err := r.exec.Query(ctx, views.MainViewGet(p, storage.Options{}))
	if err != nil {
		return nil, fmt.Errorf("read current %s: %w", p, err)
	}
	if len(rs.Rows) == 0 {
		return nil, nil
	}
	obj, err := r.cipher.DecryptObject(rs.Rows[0].Value)
	if err != nil {
		return nil, fmt.Errorf("decrypt current %s: %w", p, err)
	}
	return obj, nil
}

// PrepareSave computes the ops that make the views reflect a save: the
// merged object in the main view and one index row per indexed field, with
// rows for values the document no longer has removed. The main view op is
// always last. The merged object is returned.
func (r *Routine) PrepareSave(ctx context.Context, d *types.Descriptor) ([]views.Op, map[string]any, error) {
	p := d.Path()
	update, err := r.object(d)
	if err != nil {
		return nil, nil, err
	}
	prior, err := r.current(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	merged := types.Merge(prior, update)

	var ops []views.Op
	for _, field := range d.Schema.DBSearchIndex {
		next, hasNext := indexed(merged, field)
		prev, hasPrev := indexed(prior, field)

		if hasPrev && (!hasNext || next != prev) {
			op, err := views.IndexRemove(p, field, prior[field])
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
		}
		if hasNext {
			op, err := views.IndexSave(p, field, merged[field], d.Options.TTL)
			if err != nil {
				return nil, nil, err
			}
			ops = append(ops, op)
		}
	}

	enc, err := r.cipher.EncryptObject(merged)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt merged %s: %w", p, err)
	}
	ops = append(ops, views.MainViewSave(p, enc, d.Options.TTL))
	return ops, merged, nil
}

// PrepareRemove computes the ops that delete a document from every
// secondary view and, last, from the main view. The removed object is
// returned, nil when the document did not exist.
func (r *Routine) PrepareRemove(ctx context.Context, d *types.Descriptor) ([]views.Op, map[string]any, error) {
	p := d.Path()
	prior, err := r.current(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if prior == nil {
		return []views.Op{views.MainViewRemove(p)}, nil, nil
	}

	var ops []views.Op
	for _, field := range d.Schema.DBSearchIndex {
		if _, ok := indexed(prior, field); !ok {
			continue
		}
		op, err := views.IndexRemove(p, field, prior[field])
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, op)
	}
	return append(ops, views.MainViewRemove(p)), prior, nil
}

// Apply projects a save or remove onto the views and keeps the full-text
// index in step. It returns the object as it now stands, nil after a remove.
//
// Index ops run before the main view op. Retries recompute the index diff
// from the main view, so the main view must not move ahead of an index
// op that failed. Tables still being created are the exception: the only
// ops they can fail are upserts of values the retry will write again.
func (r *Routine) Apply(ctx context.Context, d *types.Descriptor) (map[string]any, error) {
	var (
		ops    []views.Op
		merged map[string]any
		err    error
	)
	switch d.Action {
	case types.ActionSave:
		ops, merged, err = r.PrepareSave(ctx, d)
	case types.ActionRemove:
		ops, _, err = r.PrepareRemove(ctx, d)
	default:
		return nil, fmt.Errorf("cannot apply %s descriptor %s", d.Action, d.OpID)
	}
	if err != nil {
		return nil, err
	}

	last := len(ops) - 1
	pending := r.exec.Group(ctx, ops[:last])
	if pending != nil && !errors.Is(pending, views.ErrTableCreationPending) {
		return nil, pending
	}
	if err := r.exec.Group(ctx, ops[last:]); err != nil {
		return nil, errors.Join(err, pending)
	}
	if pending != nil {
		return nil, pending
	}

	if r.search != nil && len(d.Schema.FullSearchIndex) > 0 {
		r.maintainSearch(ctx, d, merged)
	}
	return merged, nil
}

// maintainSearch is best effort: the views are already consistent and a
// failed index update only degrades full-text reads.
func (r *Routine) maintainSearch(ctx context.Context, d *types.Descriptor, merged map[string]any) {
	p := d.Path()
	var err error
	switch {
	case d.Action == types.ActionRemove:
		err = r.search.Delete(ctx, d.Schema, p)
	case merged != nil:
		err = r.search.Update(ctx, merged, d.Schema, p)
	}
	if err != nil {
		logger := log.WithPath(r.logger, p.String())
		logger.Warn().Err(err).Msg("Full-text index update failed")
	}
}

// indexed returns the index key of obj[field] when it can be indexed
func indexed(obj map[string]any, field string) (any, bool) {
	v, ok := obj[field]
	if !ok {
		return nil, false
	}
	return views.IndexValue(v)
}
