package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/jgraettinger/cockroach-encoding/encoding"
	"golang.org/x/sync/errgroup"
)

// Key space layout: catalog entries live under 'c', rows under 't' followed
// by the encoded table name.
const (
	catalogPrefix = 'c'
	rowPrefix     = 't'
)

// PebbleStore implements Store on a single Pebble LSM. Tables are key
// prefixes recorded in a catalog.
type PebbleStore struct {
	db *pebble.DB

	mu   sync.RWMutex
	defs map[string]TableDef
}

// NewPebbleStore opens or creates the Pebble database under dataDir
func NewPebbleStore(dataDir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Join(dataDir, "burrow.pebble"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}

	s := &PebbleStore{db: db, defs: make(map[string]TableDef)}
	if err := s.loadCatalog(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) loadCatalog() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{catalogPrefix},
		UpperBound: []byte{catalogPrefix + 1},
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var def TableDef
		if err := json.Unmarshal(iter.Value(), &def); err != nil {
			return fmt.Errorf("corrupt catalog entry %q: %w", iter.Key(), err)
		}
		s.defs[def.Name] = def
	}
	return iter.Error()
}

// Close closes the database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// CreateTable records def in the catalog. Creating an existing table is a no-op.
func (s *PebbleStore) CreateTable(ctx context.Context, def TableDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.Name]; ok {
		return nil
	}

	data, err := json.Marshal(def)
	if err != nil {
		return err
	}
	key := append([]byte{catalogPrefix}, def.Name...)
	err = s.db.Set(key, data, pebble.Sync)
	observe("create", err)
	if err != nil {
		return err
	}
	s.defs[def.Name] = def
	return nil
}

// Tables lists the definitions of every created table
func (s *PebbleStore) Tables(ctx context.Context) ([]TableDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]TableDef, 0, len(s.defs))
	for _, def := range s.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Execute runs a single statement
func (s *PebbleStore) Execute(ctx context.Context, stmt Statement) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StatementDuration, string(stmt.Kind))

	if stmt.Kind == KindSelect {
		rs, err := s.selectRows(stmt)
		observe(string(stmt.Kind), err)
		return rs, err
	}

	err := s.commit([]Statement{stmt})
	observe(string(stmt.Kind), err)
	return &ResultSet{}, err
}

// ExecuteIsolated applies all statements in one synced batch
func (s *PebbleStore) ExecuteIsolated(ctx context.Context, stmts []Statement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.commit(stmts)
	observe("isolated", err)
	return err
}

// ExecuteGroup applies each statement in its own batch
func (s *PebbleStore) ExecuteGroup(ctx context.Context, stmts []Statement) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(groupConcurrency)

	for _, stmt := range stmts {
		g.Go(func() error {
			if _, err := s.Execute(ctx, stmt); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *PebbleStore) commit(stmts []Statement) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	now := time.Now()
	for _, stmt := range stmts {
		def, err := s.table(stmt.Table)
		if err != nil {
			return err
		}
		key, full, err := encodeKey(def, stmt.Keys)
		if err != nil {
			return err
		}
		key = append(tablePrefix(def.Name), key...)

		switch stmt.Kind {
		case KindUpsert:
			if !full {
				return fmt.Errorf("upsert into %s needs every key column", def.Name)
			}
			data, err := encodeEnvelope(stmt, now)
			if err != nil {
				return err
			}
			err = batch.Set(key, data, nil)
		case KindDelete:
			if full {
				err = batch.Delete(key, nil)
			} else {
				err = batch.DeleteRange(key, prefixEnd(key), nil)
			}
		default:
			err = fmt.Errorf("statement kind %q cannot be applied as a write", stmt.Kind)
		}
		if err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) selectRows(stmt Statement) (*ResultSet, error) {
	def, err := s.table(stmt.Table)
	if err != nil {
		return nil, err
	}
	prefix, full, err := encodeKey(def, stmt.Keys)
	if err != nil {
		return nil, err
	}
	start, err := decodePageToken(stmt.Options.PageToken)
	if err != nil {
		return nil, err
	}

	tp := tablePrefix(def.Name)
	col := newCollector(stmt.Options, time.Now())

	if full {
		if start != nil {
			return col.result(), nil
		}
		v, closer, err := s.db.Get(append(tp, prefix...))
		if errors.Is(err, pebble.ErrNotFound) {
			return col.result(), nil
		}
		if err != nil {
			return nil, err
		}
		_, err = col.add(prefix, v)
		closer.Close()
		if err != nil {
			return nil, err
		}
		return col.result(), nil
	}

	lower := append(tp, prefix...)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(lower)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var valid bool
	step := iter.Next
	if stmt.Options.Order == types.OrderDesc {
		step = iter.Prev
		if start != nil {
			valid = iter.SeekLT(append(tablePrefix(def.Name), start...))
		} else {
			valid = iter.Last()
		}
	} else if start != nil {
		seek := append(tablePrefix(def.Name), start...)
		if valid = iter.SeekGE(seek); valid && bytes.Equal(iter.Key(), seek) {
			valid = iter.Next()
		}
	} else {
		valid = iter.First()
	}

	for ; valid; valid = step() {
		more, err := col.add(iter.Key()[len(tp):], iter.Value())
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return col.result(), nil
}

func (s *PebbleStore) table(name string) (TableDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return TableDef{}, &TableMissingError{Table: name}
	}
	return def, nil
}

func tablePrefix(name string) []byte {
	return encoding.EncodeStringAscending([]byte{rowPrefix}, name)
}
