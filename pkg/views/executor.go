package views

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrTableCreationPending is returned when a write found its table missing
// and the table has since been created. The write itself was not applied;
// the caller is expected to retry it later.
var ErrTableCreationPending = errors.New("table creation pending")

// TableCreator creates tables on demand. registry.Gate satisfies it.
type TableCreator interface {
	CreateTable(ctx context.Context, def storage.TableDef) error
}

// Executor runs view ops against the store, creating missing tables for
// writes that need them.
//
// Reads of a missing table return no rows and deletes against one are
// no-ops: nothing can be stored in a table that does not exist.
type Executor struct {
	store   storage.Store
	creator TableCreator
	logger  zerolog.Logger
}

// NewExecutor creates an executor
func NewExecutor(store storage.Store, creator TableCreator) *Executor {
	return &Executor{
		store:   store,
		creator: creator,
		logger:  log.WithComponent("views"),
	}
}

// Store returns the underlying store
func (e *Executor) Store() storage.Store {
	return e.store
}

// Query runs a single op
func (e *Executor) Query(ctx context.Context, op Op) (*storage.ResultSet, error) {
	rs, err := e.store.Execute(ctx, op.Stmt)
	if err == nil || !errors.Is(err, storage.ErrTableMissing) {
		return rs, err
	}

	switch op.Stmt.Kind {
	case storage.KindSelect, storage.KindDelete:
		return &storage.ResultSet{}, nil
	}
	if err := e.create(ctx, []storage.TableDef{op.Def}); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrTableCreationPending, op.Def.Name)
}

// Isolated applies ops all-or-nothing. A missing table aborts the whole
// unit; it is created and the caller must retry.
func (e *Executor) Isolated(ctx context.Context, ops []Op) error {
	err := e.store.ExecuteIsolated(ctx, statements(ops))
	if err == nil || !errors.Is(err, storage.ErrTableMissing) {
		return err
	}

	defs := missingDefs(ops, storage.MissingTables(err), false)
	if err := e.create(ctx, defs); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrTableCreationPending, names(defs))
}

// Group applies independent ops. Every missing table some upsert needs is
// created concurrently; failures other than missing tables are returned
// as they are.
func (e *Executor) Group(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	err := e.store.ExecuteGroup(ctx, statements(ops))
	if err == nil {
		return nil
	}

	missing := storage.MissingTables(err)
	other := withoutMissing(err)
	defs := missingDefs(ops, missing, true)

	if len(defs) > 0 {
		if cerr := e.create(ctx, defs); cerr != nil {
			return errors.Join(cerr, other)
		}
	}
	if other != nil {
		return other
	}
	if len(defs) > 0 {
		return fmt.Errorf("%w: %s", ErrTableCreationPending, names(defs))
	}
	return nil
}

func (e *Executor) create(ctx context.Context, defs []storage.TableDef) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, def := range defs {
		e.logger.Debug().Str("table", def.Name).Msg("Creating missing table")
		g.Go(func() error {
			return e.creator.CreateTable(gctx, def)
		})
	}
	return g.Wait()
}

func statements(ops []Op) []storage.Statement {
	stmts := make([]storage.Statement, len(ops))
	for i, op := range ops {
		stmts[i] = op.Stmt
	}
	return stmts
}

// missingDefs returns the definitions of the missing tables. With
// upsertsOnly, tables that only deletes touched are skipped.
func missingDefs(ops []Op, missing []string, upsertsOnly bool) []storage.TableDef {
	want := make(map[string]bool, len(missing))
	for _, name := range missing {
		want[name] = true
	}

	var defs []storage.TableDef
	for _, op := range ops {
		if !want[op.Def.Name] {
			continue
		}
		if upsertsOnly && op.Stmt.Kind != storage.KindUpsert {
			continue
		}
		want[op.Def.Name] = false
		defs = append(defs, op.Def)
	}
	return defs
}

// withoutMissing drops table-missing failures from a joined error
func withoutMissing(err error) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		if errors.Is(err, storage.ErrTableMissing) {
			return nil
		}
		return err
	}
	var rest []error
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, storage.ErrTableMissing) {
			rest = append(rest, e)
		}
	}
	return errors.Join(rest...)
}

func names(defs []storage.TableDef) string {
	s := ""
	for i, def := range defs {
		if i > 0 {
			s += ", "
		}
		s += def.Name
	}
	return s
}
