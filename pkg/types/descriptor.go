package types

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of operation a Descriptor carries
type Action string

const (
	ActionSave   Action = "save"
	ActionGet    Action = "get"
	ActionRemove Action = "remove"
)

// Order is the key order of a read
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Operator is a comparison used in a where clause
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
	OpIn Operator = "in"
)

// Valid reports whether op is a known operator
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpIn:
		return true
	}
	return false
}

// Where filters rows on a single field
type Where struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value any      `json:"value"`
}

// Options tune a single operation
type Options struct {
	TTL        int    `json:"ttl,omitempty"` // seconds
	Where      *Where `json:"where,omitempty"`
	Order      Order  `json:"order,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	PageToken  string `json:"pageToken,omitempty"`
	FullSearch bool   `json:"fullSearch,omitempty"`
	Query      string `json:"query,omitempty"`
}

// Schema names the fields of an object that are indexed
type Schema struct {
	DBSearchIndex   []string `json:"dbSearchIndex,omitempty"`
	FullSearchIndex []string `json:"fullSearchIndex,omitempty"`
}

// Descriptor is the unit of work recorded in the task store and applied by
// the projector. OpID is time ordered and defines the commit order of a path.
type Descriptor struct {
	Action      Action         `json:"action"`
	Collections []string       `json:"collections"`
	Documents   []string       `json:"documents"`
	OpID        string         `json:"opId"`
	ClearObject map[string]any `json:"clearObject,omitempty"`
	EncObject   []byte         `json:"encObject,omitempty"`
	Options     Options        `json:"options"`
	Schema      Schema         `json:"schema"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewOpID returns a UUIDv7 whose string form sorts in creation order
func NewOpID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails when the random source does.
		panic(err)
	}
	return id.String()
}

// NewSave builds a save descriptor for a document path
func NewSave(p Path, object map[string]any, schema Schema, opts Options) (*Descriptor, error) {
	if !p.IsDocument() {
		return nil, invalid("path", "save requires a document path, got %q", p.String())
	}
	if object == nil {
		return nil, invalid("object", "save requires an object")
	}
	d := newDescriptor(ActionSave, p, schema, opts)
	d.ClearObject = object
	return d, nil
}

// NewRemove builds a remove descriptor for a document path
func NewRemove(p Path, schema Schema) (*Descriptor, error) {
	if !p.IsDocument() {
		return nil, invalid("path", "remove requires a document path, got %q", p.String())
	}
	return newDescriptor(ActionRemove, p, schema, Options{}), nil
}

// NewGet builds a get descriptor for a document path or a collection scope
func NewGet(p Path, schema Schema, opts Options) (*Descriptor, error) {
	if opts.Where != nil && !opts.Where.Op.Valid() {
		return nil, invalid("where", "unknown operator %q", opts.Where.Op)
	}
	if opts.Order != "" && opts.Order != OrderAsc && opts.Order != OrderDesc {
		return nil, invalid("order", "must be asc or desc, got %q", opts.Order)
	}
	if opts.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	return newDescriptor(ActionGet, p, schema, opts), nil
}

func newDescriptor(action Action, p Path, schema Schema, opts Options) *Descriptor {
	return &Descriptor{
		Action:      action,
		Collections: p.Collections,
		Documents:   p.Documents,
		OpID:        NewOpID(),
		Options:     opts,
		Schema:      schema,
		CreatedAt:   time.Now().UTC(),
	}
}

// Path returns the path the descriptor addresses
func (d *Descriptor) Path() Path {
	return Path{Collections: d.Collections, Documents: d.Documents}
}

// Validate checks the structural invariants a descriptor read back from the
// task store must hold.
func (d *Descriptor) Validate() error {
	switch d.Action {
	case ActionSave, ActionRemove:
		if len(d.Documents) != len(d.Collections) || len(d.Collections) == 0 {
			return invalid("descriptor", "%s requires a document path", d.Action)
		}
	case ActionGet:
	default:
		return invalid("action", "unknown action %q", d.Action)
	}
	if d.OpID == "" {
		return invalid("descriptor", "missing opId")
	}
	if d.Action == ActionSave && (d.ClearObject == nil) == (d.EncObject == nil) {
		return invalid("descriptor", "save must carry exactly one of clear or encrypted object")
	}
	return nil
}

// Redacted returns a copy without the object payload, as kept in the event store
func (d *Descriptor) Redacted() *Descriptor {
	c := *d
	c.ClearObject = nil
	c.EncObject = nil
	return &c
}
