// Package query translates the abstract list query accepted by the catalog
// (structured predicates, VQL token search, sort keys, cursors and limits)
// into a native MongoDB filter, sort and limit.
package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrValidation marks malformed query input. It is returned before any store
// access happens.
var ErrValidation = errors.New("invalid query")

// SearchField holds the token set matched by VQL.
const SearchField = "_relations.search"

// DefaultSortBy is used when a query declares no sort keys.
var DefaultSortBy = []string{"updated_at", "id"}

// Op is a structured predicate operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpExists Op = "exists"
)

// Predicate is one structured filter term.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Pair is one [field, value] element of a cursor.
type Pair struct {
	Field string
	Value any
}

// Cursor is a sort-key boundary. Its fields must be a prefix of the query's
// sort keys, in the same order.
type Cursor []Pair

// Query is the abstract list query.
type Query struct {
	VQL     string
	Filters []Predicate
	// SortBy lists sort fields; a leading "-" sorts that field descending.
	SortBy      []string
	Limit       int
	LimitToLast int
	StartAt     Cursor
	StartAfter  Cursor
	EndAt       Cursor
	EndBefore   Cursor
	Expand      []string
}

// Limits bounds page sizes.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultLimits applies when no configuration overrides them.
var DefaultLimits = Limits{DefaultPageSize: 10, MaxPageSize: 250}

// Native is a translated query. When ReverseSign is -1 the results fetched
// with Sort are in reverse of the declared order and must be reversed back.
type Native struct {
	Filter      bson.M
	Sort        bson.D
	Limit       int64
	ReverseSign int
}

type sortKey struct {
	field string
	dir   int
}

func parseSort(sortBy []string) ([]sortKey, error) {
	if len(sortBy) == 0 {
		sortBy = DefaultSortBy
	}
	keys := make([]sortKey, 0, len(sortBy))
	seen := map[string]bool{}
	for _, raw := range sortBy {
		k := sortKey{field: strings.TrimSpace(raw), dir: 1}
		if strings.HasPrefix(k.field, "-") {
			k.field, k.dir = k.field[1:], -1
		}
		if err := validField(k.field); err != nil {
			return nil, err
		}
		if seen[k.field] {
			return nil, fmt.Errorf("%w: duplicate sort key %q", ErrValidation, k.field)
		}
		seen[k.field] = true
		keys = append(keys, k)
	}
	return keys, nil
}

func validField(field string) error {
	if field == "" {
		return fmt.Errorf("%w: empty field name", ErrValidation)
	}
	if strings.HasPrefix(field, "$") {
		return fmt.Errorf("%w: field %q must not start with $", ErrValidation, field)
	}
	return nil
}

// Translate builds the native query for q.
func Translate(q Query, lim Limits) (Native, error) {
	keys, err := parseSort(q.SortBy)
	if err != nil {
		return Native{}, err
	}
	filter, err := buildFilter(q, keys)
	if err != nil {
		return Native{}, err
	}
	limit, err := pageSize(q, lim)
	if err != nil {
		return Native{}, err
	}

	n := Native{Filter: filter, Limit: limit, ReverseSign: 1}
	if q.LimitToLast > 0 {
		n.ReverseSign = -1
	}
	n.Sort = make(bson.D, 0, len(keys))
	for _, k := range keys {
		n.Sort = append(n.Sort, bson.E{Key: k.field, Value: k.dir * n.ReverseSign})
	}
	return n, nil
}

// Filter returns only the filter part of q, as used by count.
func Filter(q Query) (bson.M, error) {
	keys, err := parseSort(q.SortBy)
	if err != nil {
		return nil, err
	}
	return buildFilter(q, keys)
}

func pageSize(q Query, lim Limits) (int64, error) {
	if q.Limit < 0 || q.LimitToLast < 0 {
		return 0, fmt.Errorf("%w: negative limit", ErrValidation)
	}
	if lim.DefaultPageSize <= 0 {
		lim.DefaultPageSize = DefaultLimits.DefaultPageSize
	}
	size := q.Limit
	if q.LimitToLast > 0 {
		size = q.LimitToLast
	}
	if size == 0 {
		size = lim.DefaultPageSize
	}
	if lim.MaxPageSize > 0 && size > lim.MaxPageSize {
		size = lim.MaxPageSize
	}
	return int64(size), nil
}

func buildFilter(q Query, keys []sortKey) (bson.M, error) {
	var terms []bson.M
	for _, p := range q.Filters {
		t, err := predicateTerm(p)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if strings.TrimSpace(q.VQL) != "" {
		t, err := CompileVQL(q.VQL)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	bounds := []struct {
		cursor    Cursor
		lower     bool
		inclusive bool
	}{
		{q.StartAt, true, true},
		{q.StartAfter, true, false},
		{q.EndAt, false, true},
		{q.EndBefore, false, false},
	}
	for _, b := range bounds {
		if b.cursor == nil {
			continue
		}
		t, err := cursorTerm(b.cursor, keys, b.lower, b.inclusive)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return And(terms...), nil
}

// And conjoins filter terms, collapsing trivial cases.
func And(terms ...bson.M) bson.M {
	kept := make(bson.A, 0, len(terms))
	for _, t := range terms {
		if len(t) > 0 {
			kept = append(kept, t)
		}
	}
	switch len(kept) {
	case 0:
		return bson.M{}
	case 1:
		return kept[0].(bson.M)
	}
	return bson.M{"$and": kept}
}

func predicateTerm(p Predicate) (bson.M, error) {
	if err := validField(p.Field); err != nil {
		return nil, err
	}
	switch p.Op {
	case OpEq, "":
		return bson.M{p.Field: p.Value}, nil
	case OpNe, OpGt, OpGte, OpLt, OpLte:
		return bson.M{p.Field: bson.M{"$" + string(p.Op): p.Value}}, nil
	case OpIn, OpNin:
		arr, ok := toArray(p.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %q expects a list", ErrValidation, p.Op, p.Field)
		}
		return bson.M{p.Field: bson.M{"$" + string(p.Op): arr}}, nil
	case OpExists:
		b, ok := p.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: exists on %q expects a bool", ErrValidation, p.Field)
		}
		return bson.M{p.Field: bson.M{"$exists": b}}, nil
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrValidation, p.Op)
}

func toArray(v any) (bson.A, bool) {
	switch val := v.(type) {
	case bson.A:
		return val, true
	case []any:
		return bson.A(val), true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make(bson.A, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// cursorTerm builds the lexicographic range over the cursor's sort keys.
// A lower bound keeps documents at or after the cursor in declared order,
// an upper bound those at or before it.
func cursorTerm(c Cursor, keys []sortKey, lower, inclusive bool) (bson.M, error) {
	if len(c) == 0 || len(c) > len(keys) {
		return nil, fmt.Errorf("%w: cursor has %d keys, sort has %d", ErrValidation, len(c), len(keys))
	}
	for i, p := range c {
		if p.Field != keys[i].field {
			return nil, fmt.Errorf("%w: cursor key %d is %q, sort key is %q", ErrValidation, i, p.Field, keys[i].field)
		}
	}

	branches := make(bson.A, 0, len(c)+1)
	for i := range c {
		dir := keys[i].dir
		if !lower {
			dir = -dir
		}
		op := "$gt"
		if dir < 0 {
			op = "$lt"
		}
		branch := bson.D{}
		for _, prev := range c[:i] {
			branch = append(branch, bson.E{Key: prev.Field, Value: prev.Value})
		}
		branches = append(branches, conj(append(branch, bson.E{Key: c[i].Field, Value: bson.M{op: c[i].Value}})))
	}
	if inclusive {
		eq := bson.D{}
		for _, p := range c {
			eq = append(eq, bson.E{Key: p.Field, Value: p.Value})
		}
		branches = append(branches, conj(eq))
	}
	if len(branches) == 1 {
		return branches[0].(bson.M), nil
	}
	return bson.M{"$or": branches}, nil
}

func conj(d bson.D) bson.M {
	out := make(bson.M, len(d))
	for _, e := range d {
		out[e.Key] = e.Value
	}
	return out
}

// ExpandAll reports whether the wildcard expansion was requested.
func (q Query) ExpandAll() bool {
	for _, e := range q.Expand {
		if e == "*" {
			return true
		}
	}
	return false
}
