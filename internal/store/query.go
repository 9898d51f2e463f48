package store

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/nudge/internal/errors"
)

// MaxInValues is the largest value list accepted by an "in" filter.
const MaxInValues = 10

// Op is a filter operator.
type Op string

const (
	OpEq            Op = "=="
	OpArrayContains Op = "array-contains"
	OpIn            Op = "in"
)

// Filter restricts a query to documents whose field satisfies Op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// ArrayContains matches documents whose array field contains value.
func ArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// In matches documents whose field equals one of values.
func In(field string, values ...string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Field: field, Op: OpIn, Value: vs}
}

// Order sorts query results by a field.
type Order struct {
	Field string
	Desc  bool
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
}

// NewQuery starts a query on collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with f added.
func (q Query) Where(f Filter) Query {
	q.Filters = append(slices.Clone(q.Filters), f)
	return q
}

// OrderBy returns a copy of q sorted additionally by field.
func (q Query) OrderBy(field string, desc bool) Query {
	q.Orders = append(slices.Clone(q.Orders), Order{Field: field, Desc: desc})
	return q
}

// Validate checks the query against the store's limits.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query has no collection")
	}
	for _, f := range q.Filters {
		if f.Op != OpIn {
			continue
		}
		vs, ok := f.Value.([]any)
		if !ok {
			return fmt.Errorf("in filter on %s needs a value list", f.Field)
		}
		if len(vs) > MaxInValues {
			return fmt.Errorf("%w: %d values on %s (max %d)", kerrors.ErrTooManyValues, len(vs), f.Field, MaxInValues)
		}
	}
	return nil
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " where %s %s %v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", o.Field, dir)
	}
	return b.String()
}

// Matches reports whether fields satisfy every filter of q.
func (q Query) Matches(fields map[string]any) bool {
	for _, f := range q.Filters {
		v, ok := GetPath(fields, f.Field)
		switch f.Op {
		case OpEq:
			if !ok || !equal(v, f.Value) {
				return false
			}
		case OpArrayContains:
			arr, isArr := v.([]any)
			if !ok || !isArr || !slices.ContainsFunc(arr, func(e any) bool { return equal(e, f.Value) }) {
				return false
			}
		case OpIn:
			vs, _ := f.Value.([]any)
			if !ok || !slices.ContainsFunc(vs, func(e any) bool { return equal(v, e) }) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Sort orders docs by q's order clauses, breaking ties by id.
func (q Query) Sort(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range q.Orders {
			a, _ := GetPath(docs[i].Fields, o.Field)
			b, _ := GetPath(docs[j].Fields, o.Field)
			c := Compare(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

// GetPath reads a dotted path from fields.
func GetPath(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes value at a dotted path, creating intermediate maps.
func SetPath(fields map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Compare orders two field values of the same kind. Values of different or
// unknown kinds compare equal.
func Compare(a, b any) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok && av != bv {
			if av {
				return 1
			}
			return -1
		}
	}
	return 0
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case string, bool:
		return a == b
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// Clone deep-copies a field map.
func Clone(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return v
	}
}
