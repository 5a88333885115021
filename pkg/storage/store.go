package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
)

// ErrTableMissing is matched by every TableMissingError
var ErrTableMissing = errors.New("table missing")

// TableMissingError is returned when a statement names a table that has not
// been created. It is the one recoverable failure the adapter distinguishes.
type TableMissingError struct {
	Table string
}

func (e *TableMissingError) Error() string {
	return fmt.Sprintf("table %s does not exist", e.Table)
}

// Is makes errors.Is(err, ErrTableMissing) hold for any TableMissingError
func (e *TableMissingError) Is(target error) bool {
	return target == ErrTableMissing
}

// MissingTables returns the distinct tables named by every TableMissingError
// found in err, including errors joined by ExecuteGroup.
func MissingTables(err error) []string {
	var tables []string
	seen := make(map[string]bool)

	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if tm, ok := err.(*TableMissingError); ok {
			if !seen[tm.Table] {
				seen[tm.Table] = true
				tables = append(tables, tm.Table)
			}
			return
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return tables
}

// StatementKind is the verb of a statement
type StatementKind string

const (
	KindSelect StatementKind = "select"
	KindUpsert StatementKind = "upsert"
	KindDelete StatementKind = "delete"
)

// TableDef describes the key layout of a physical table. Rows are ordered by
// partition keys then clustering keys.
type TableDef struct {
	Name           string   `json:"name"`
	PartitionKeys  []string `json:"partitionKeys"`
	ClusteringKeys []string `json:"clusteringKeys,omitempty"`
}

// Columns returns the key columns in storage order
func (d TableDef) Columns() []string {
	cols := make([]string, 0, len(d.PartitionKeys)+len(d.ClusteringKeys))
	cols = append(cols, d.PartitionKeys...)
	return append(cols, d.ClusteringKeys...)
}

// Validate checks that the definition can be created
func (d TableDef) Validate() error {
	if d.Name == "" || strings.HasPrefix(d.Name, "__") {
		return fmt.Errorf("invalid table name %q", d.Name)
	}
	if len(d.PartitionKeys) == 0 {
		return fmt.Errorf("table %s has no partition key", d.Name)
	}
	seen := make(map[string]bool)
	for _, c := range d.Columns() {
		if c == "" || seen[c] {
			return fmt.Errorf("table %s has empty or duplicate column %q", d.Name, c)
		}
		seen[c] = true
	}
	return nil
}

// Options tune a statement
type Options struct {
	TTL       time.Duration
	Where     *types.Where
	Order     types.Order
	Limit     int
	PageToken string
}

// Statement is a single read or write against one table. Keys must name an
// ordered prefix of the table's columns; writes need the full key.
type Statement struct {
	Kind    StatementKind
	Table   string
	Keys    map[string]any
	Value   []byte
	Options Options
}

// Row is one stored entry
type Row struct {
	Keys  map[string]any
	Value []byte
}

// ResultSet holds the rows of a select. PageToken is set when Limit cut the
// result short and resumes after the last returned row.
type ResultSet struct {
	Rows      []Row
	PageToken string
}

// Store executes statements against the column store. It does not retry.
type Store interface {
	// Execute runs a single statement
	Execute(ctx context.Context, stmt Statement) (*ResultSet, error)

	// ExecuteIsolated applies all write statements or none of them
	ExecuteIsolated(ctx context.Context, stmts []Statement) error

	// ExecuteGroup applies independent statements. Failures do not roll
	// back the others; all failures are returned joined.
	ExecuteGroup(ctx context.Context, stmts []Statement) error

	// CreateTable creates a table if it does not already exist
	CreateTable(ctx context.Context, def TableDef) error

	// Tables lists the created tables
	Tables(ctx context.Context) ([]TableDef, error)

	Close() error
}

func observe(kind string, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTableMissing):
		outcome = "table_missing"
	case err != nil:
		outcome = "error"
	}
	metrics.StatementsTotal.WithLabelValues(kind, outcome).Inc()
}
