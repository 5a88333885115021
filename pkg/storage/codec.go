package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/jgraettinger/cockroach-encoding/encoding"
)

// envelope is the stored form of a row
type envelope struct {
	Keys      map[string]any `json:"k"`
	Value     []byte         `json:"v,omitempty"`
	ExpiresAt int64          `json:"e,omitempty"`
}

func encodeEnvelope(stmt Statement, now time.Time) ([]byte, error) {
	env := envelope{Keys: stmt.Keys, Value: stmt.Value}
	if stmt.Options.TTL > 0 {
		env.ExpiresAt = now.Add(stmt.Options.TTL).UnixNano()
	}
	return json.Marshal(env)
}

// encodeKey encodes the key values named by keys in column order. The
// encoding preserves order, so a partial key is a byte prefix of every full
// key that extends it. full reports whether every column was given.
func encodeKey(def TableDef, keys map[string]any) (key []byte, full bool, err error) {
	cols := def.Columns()
	used := 0
	for i, col := range cols {
		v, ok := keys[col]
		if !ok {
			break
		}
		if key, err = appendKeyValue(key, v); err != nil {
			return nil, false, fmt.Errorf("column %s: %w", col, err)
		}
		used = i + 1
	}
	if used != len(keys) {
		return nil, false, fmt.Errorf("keys of table %s must name a prefix of (%s)", def.Name, strings.Join(cols, ", "))
	}
	return key, used == len(cols), nil
}

func appendKeyValue(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return encoding.EncodeStringAscending(b, x), nil
	case bool:
		if x {
			return encoding.EncodeVarintAscending(b, 1), nil
		}
		return encoding.EncodeVarintAscending(b, 0), nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", v)
		}
		return encoding.EncodeFloatAscending(b, f), nil
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func encodePageToken(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

func decodePageToken(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	key, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid page token: %w", err)
	}
	return key, nil
}

// collector accumulates scanned rows, applying expiry, the where clause and
// the limit.
type collector struct {
	opts Options
	now  int64
	rows []Row
	last []byte
	full bool
}

func newCollector(opts Options, now time.Time) *collector {
	return &collector{opts: opts, now: now.UnixNano()}
}

// add decodes one stored row. It returns false once the limit is reached.
// k and raw are copied, so they may be reused by the caller.
func (c *collector) add(k, raw []byte) (bool, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("corrupt row: %w", err)
	}
	if env.ExpiresAt != 0 && env.ExpiresAt <= c.now {
		return true, nil
	}
	ok, err := matchWhere(c.opts.Where, env.Keys)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	c.rows = append(c.rows, Row{Keys: env.Keys, Value: env.Value})
	c.last = append(c.last[:0], k...)
	if c.opts.Limit > 0 && len(c.rows) >= c.opts.Limit {
		c.full = true
		return false, nil
	}
	return true, nil
}

func (c *collector) result() *ResultSet {
	rs := &ResultSet{Rows: c.rows}
	if c.full {
		rs.PageToken = encodePageToken(c.last)
	}
	return rs
}

// matchWhere evaluates w against the key columns of a row. A nil clause
// matches everything; a clause on an absent column matches nothing.
func matchWhere(w *types.Where, keys map[string]any) (bool, error) {
	if w == nil {
		return true, nil
	}
	v, ok := keys[w.Field]
	if !ok {
		return false, nil
	}

	if w.Op == types.OpIn {
		set, err := asList(w.Value)
		if err != nil {
			return false, err
		}
		for _, candidate := range set {
			if c, ok := compare(v, candidate); ok && c == 0 {
				return true, nil
			}
		}
		return false, nil
	}

	c, ok := compare(v, w.Value)
	if !ok {
		return w.Op == types.OpNe, nil
	}
	switch w.Op {
	case types.OpEq:
		return c == 0, nil
	case types.OpNe:
		return c != 0, nil
	case types.OpLt:
		return c < 0, nil
	case types.OpLe:
		return c <= 0, nil
	case types.OpGt:
		return c > 0, nil
	case types.OpGe:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", w.Op)
}

// compare orders two key values of the same kind. ok is false when the
// kinds differ.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}

	x, ok := toFloat(a)
	if !ok {
		return 0, false
	}
	y, ok := toFloat(b)
	if !ok {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

func asList(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("operator in needs a list, got %T", v)
}
