package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("validation error")

// ValidationError reports a malformed request. It is always fatal and is
// returned before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold for any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Collection names become table name fragments joined by "_" and key
// column names, so they cannot contain "_" themselves.
var collectionPattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// Path is a sequence of alternating collection-name / document-id segments.
// A path with as many documents as collections addresses one document; a
// path with one extra collection addresses a collection scope.
type Path struct {
	Collections []string
	Documents   []string
}

// ParsePath parses a slash-delimited path such as
// "company/<uuid>/channel/<uuid>/message".
func ParsePath(raw string) (Path, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return Path{}, invalid("path", "empty path")
	}

	var collections, documents []string
	for i, seg := range strings.Split(raw, "/") {
		if i%2 == 0 {
			collections = append(collections, seg)
		} else {
			documents = append(documents, seg)
		}
	}
	return NewPath(collections, documents)
}

// NewPath validates the segments and returns the path. Document ids are
// canonicalised to their lowercase UUID form.
func NewPath(collections, documents []string) (Path, error) {
	if len(collections) == 0 {
		return Path{}, invalid("path", "no collection segment")
	}
	if len(documents) != len(collections) && len(documents) != len(collections)-1 {
		return Path{}, invalid("path", "%d collections and %d documents do not alternate", len(collections), len(documents))
	}

	seen := make(map[string]bool, len(collections))
	for _, c := range collections {
		if !collectionPattern.MatchString(c) {
			return Path{}, invalid("collection", "%q must be lowercase alphanumeric", c)
		}
		if seen[c] {
			return Path{}, invalid("collection", "%q appears twice in path", c)
		}
		seen[c] = true
	}

	docs := make([]string, len(documents))
	for i, d := range documents {
		id, err := uuid.Parse(d)
		if err != nil {
			return Path{}, invalid("document", "%q is not a uuid", d)
		}
		docs[i] = id.String()
	}

	return Path{
		Collections: append([]string(nil), collections...),
		Documents:   docs,
	}, nil
}

// IsDocument reports whether the path addresses a single document
func (p Path) IsDocument() bool {
	return len(p.Collections) > 0 && len(p.Documents) == len(p.Collections)
}

// CollectionScope returns the collection containing the addressed document,
// or the path itself when it is already a collection scope.
func (p Path) CollectionScope() Path {
	if !p.IsDocument() {
		return p
	}
	return Path{
		Collections: p.Collections,
		Documents:   p.Documents[:len(p.Documents)-1],
	}
}

// Leaf returns the innermost collection name
func (p Path) Leaf() string {
	if len(p.Collections) == 0 {
		return ""
	}
	return p.Collections[len(p.Collections)-1]
}

// LeafID returns the document id of a document path, "" otherwise
func (p Path) LeafID() string {
	if !p.IsDocument() {
		return ""
	}
	return p.Documents[len(p.Documents)-1]
}

// Child returns the document path for id inside this collection scope
func (p Path) Child(id string) Path {
	scope := p.CollectionScope()
	return Path{
		Collections: scope.Collections,
		Documents:   append(append([]string(nil), scope.Documents...), id),
	}
}

// Keys maps every collection that has a document id to that id
func (p Path) Keys() map[string]any {
	keys := make(map[string]any, len(p.Documents))
	for i, id := range p.Documents {
		keys[p.Collections[i]] = id
	}
	return keys
}

func (p Path) String() string {
	var b strings.Builder
	for i, c := range p.Collections {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(c)
		if i < len(p.Documents) {
			b.WriteByte('/')
			b.WriteString(p.Documents[i])
		}
	}
	return b.String()
}
