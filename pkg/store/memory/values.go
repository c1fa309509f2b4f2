package memory

import (
	"bytes"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalize deep-copies v into the canonical in-memory shape: documents become
// bson.M, arrays become bson.A, integers int64, floats float64 and times
// primitive.DateTime. Structs are converted through their bson encoding.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bson.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case bson.D:
		out := make(bson.M, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalizeSlice([]any(val))
	case []any:
		return normalizeSlice(val)
	case []string:
		out := make(bson.A, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case string, bool, primitive.ObjectID, primitive.DateTime, primitive.Null:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	case time.Time:
		return primitive.NewDateTimeFromTime(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make(bson.A, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(bson.M, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		raw, err := bson.Marshal(v)
		if err != nil {
			return v
		}
		out := bson.M{}
		if err := bson.Unmarshal(raw, &out); err != nil {
			return v
		}
		return normalizeMap(out)
	}
	return v
}

func normalizeMap(m map[string]any) bson.M {
	out := make(bson.M, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(s []any) bson.A {
	out := make(bson.A, len(s))
	for i, v := range s {
		out[i] = normalize(v)
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case float32:
		return float64(val), true
	}
	return 0, false
}

// typeRank orders bson types the way MongoDB sorts mixed-type fields.
func typeRank(v any) int {
	switch v.(type) {
	case nil, primitive.Null:
		return 1
	case int64, float64, int, int32, float32:
		return 2
	case string:
		return 3
	case bson.M:
		return 4
	case bson.A:
		return 5
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime:
		return 9
	}
	return 10
}

// compareValues orders two values of the same type bracket. ok is false when
// the brackets differ, which makes range operators fail to match.
func compareValues(a, b any) (int, bool) {
	if typeRank(a) != typeRank(b) {
		return 0, false
	}
	switch av := a.(type) {
	case nil, primitive.Null:
		return 0, true
	case string:
		return strings.Compare(av, b.(string)), true
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case primitive.DateTime:
		bv := b.(primitive.DateTime)
		return cmpInt64(int64(av), int64(bv)), true
	case primitive.ObjectID:
		bv := b.(primitive.ObjectID)
		return bytes.Compare(av[:], bv[:]), true
	case bson.A:
		bv := b.(bson.A)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := sortCompare(av[i], bv[i]); c != 0 {
				return c, true
			}
		}
		return cmpInt64(int64(len(av)), int64(len(bv))), true
	case bson.M:
		if valuesEqual(a, b) {
			return 0, true
		}
		return cmpInt64(int64(len(av)), int64(len(b.(bson.M)))), true
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// sortCompare is a total order across types used by Find's sort.
func sortCompare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmpInt64(int64(ra), int64(rb))
	}
	c, _ := compareValues(a, b)
	return c
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func valuesEqual(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch av := a.(type) {
	case bson.M:
		bv, ok := b.(bson.M)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	case bson.A:
		bv, ok := b.(bson.A)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if a == nil || b == nil {
		return isNull(a) && isNull(b)
	}
	c, ok := compareValues(a, b)
	return ok && c == 0
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(primitive.Null)
	return ok
}

// lookup resolves a dotted path. Arrays met on the way are traversed
// element-wise, and numeric segments index into arrays.
func lookup(doc any, path string) (values []any, found bool) {
	return lookupParts(doc, strings.Split(path, "."))
}

func lookupParts(cur any, parts []string) ([]any, bool) {
	if len(parts) == 0 {
		return []any{cur}, true
	}
	switch node := cur.(type) {
	case bson.M:
		next, ok := node[parts[0]]
		if !ok {
			return nil, false
		}
		return lookupParts(next, parts[1:])
	case bson.A:
		if idx, ok := arrayIndex(parts[0]); ok {
			if idx >= len(node) {
				return nil, false
			}
			return lookupParts(node[idx], parts[1:])
		}
		var out []any
		found := false
		for _, el := range node {
			if _, isDoc := el.(bson.M); !isDoc {
				continue
			}
			vals, ok := lookupParts(el, parts)
			if ok {
				found = true
				out = append(out, vals...)
			}
		}
		return out, found
	}
	return nil, false
}

func arrayIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
