package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
)

var (
	// Holds the definition of every created table, keyed by name
	bucketTables = []byte("__tables")
)

// groupConcurrency bounds the goroutines of one ExecuteGroup call
const groupConcurrency = 8

// BoltStore implements Store using BoltDB. Every physical table is a bucket.
type BoltStore struct {
	db *bolt.DB

	mu   sync.RWMutex
	defs map[string]TableDef
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "burrow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTables)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", bucketTables, err)
	}

	return &BoltStore{db: db, defs: make(map[string]TableDef)}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// CreateTable creates the bucket for def and records its definition.
// Creating an existing table is a no-op.
func (s *BoltStore) CreateTable(ctx context.Context, def TableDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(def)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(def.Name)) != nil {
			return nil
		}
		if _, err := tx.CreateBucket([]byte(def.Name)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", def.Name, err)
		}
		return tx.Bucket(bucketTables).Put([]byte(def.Name), data)
	})
	observe("create", err)
	return err
}

// Tables lists the definitions of every created table
func (s *BoltStore) Tables(ctx context.Context) ([]TableDef, error) {
	var defs []TableDef
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTables).ForEach(func(k, v []byte) error {
			var def TableDef
			if err := json.Unmarshal(v, &def); err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
	})
	return defs, err
}

// Execute runs a single statement
func (s *BoltStore) Execute(ctx context.Context, stmt Statement) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StatementDuration, string(stmt.Kind))

	var rs *ResultSet
	var err error
	if stmt.Kind == KindSelect {
		err = s.db.View(func(tx *bolt.Tx) error {
			rs, err = s.selectRows(tx, stmt)
			return err
		})
	} else {
		rs = &ResultSet{}
		err = s.db.Update(func(tx *bolt.Tx) error {
			return s.write(tx, stmt, time.Now())
		})
	}
	observe(string(stmt.Kind), err)
	return rs, err
}

// ExecuteIsolated applies all statements in one transaction
func (s *BoltStore) ExecuteIsolated(ctx context.Context, stmts []Statement) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, stmt := range stmts {
			if err := s.write(tx, stmt, now); err != nil {
				return err
			}
		}
		return nil
	})
	observe("isolated", err)
	return err
}

// ExecuteGroup applies each statement in its own transaction
func (s *BoltStore) ExecuteGroup(ctx context.Context, stmts []Statement) error {
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

func (s *BoltStore) write(tx *bolt.Tx, stmt Statement, now time.Time) error {
	b, def, err := s.table(tx, stmt.Table)
	if err != nil {
		return err
	}
	key, full, err := encodeKey(def, stmt.Keys)
	if err != nil {
		return err
	}

	switch stmt.Kind {
	case KindUpsert:
		if !full {
			return fmt.Errorf("upsert into %s needs every key column", def.Name)
		}
		data, err := encodeEnvelope(stmt, now)
		if err != nil {
			return err
		}
		return b.Put(key, data)

	case KindDelete:
		if full {
			return b.Delete(key)
		}
		// Partial key deletes the whole range
		c := b.Cursor()
		for k, _ := c.Seek(key); k != nil && bytes.HasPrefix(k, key); k, _ = c.Seek(key) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("statement kind %q cannot be applied as a write", stmt.Kind)
}

func (s *BoltStore) selectRows(tx *bolt.Tx, stmt Statement) (*ResultSet, error) {
	b, def, err := s.table(tx, stmt.Table)
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

	col := newCollector(stmt.Options, time.Now())
	if full {
		if start == nil {
			if v := b.Get(prefix); v != nil {
				if _, err := col.add(prefix, v); err != nil {
					return nil, err
				}
			}
		}
		return col.result(), nil
	}

	c := b.Cursor()
	var k, v []byte
	step := c.Next
	if stmt.Options.Order == types.OrderDesc {
		step = c.Prev
		seekTo := start
		if seekTo == nil {
			seekTo = prefixEnd(prefix)
		}
		if seekTo == nil {
			k, v = c.Last()
		} else if k, _ = c.Seek(seekTo); k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	} else if start != nil {
		if k, v = c.Seek(start); k != nil && bytes.Equal(k, start) {
			k, v = c.Next()
		}
	} else {
		k, v = c.Seek(prefix)
	}

	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = step() {
		more, err := col.add(k, v)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return col.result(), nil
}

// table returns the bucket and definition of a table
func (s *BoltStore) table(tx *bolt.Tx, name string) (*bolt.Bucket, TableDef, error) {
	b := tx.Bucket([]byte(name))
	if b == nil || name == string(bucketTables) {
		return nil, TableDef{}, &TableMissingError{Table: name}
	}

	s.mu.RLock()
	def, ok := s.defs[name]
	s.mu.RUnlock()
	if ok {
		return b, def, nil
	}

	data := tx.Bucket(bucketTables).Get([]byte(name))
	if data == nil {
		return nil, TableDef{}, fmt.Errorf("table %s has no definition", name)
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, TableDef{}, fmt.Errorf("corrupt definition of table %s: %w", name, err)
	}

	s.mu.Lock()
	s.defs[name] = def
	s.mu.Unlock()
	return b, def, nil
}
