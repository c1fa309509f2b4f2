package memory

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Match reports whether doc satisfies a MongoDB-style filter. It supports
// implicit equality, $and/$or/$nor, and the field operators $eq, $ne, $gt,
// $gte, $lt, $lte, $in, $nin, $exists, $all and $not.
func Match(doc bson.M, filter bson.M) (bool, error) {
	return matchDoc(doc, normalizeMap(filter))
}

func matchDoc(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = matchAll(doc, cond)
		case "$or":
			ok, err = matchAny(doc, cond)
		case "$nor":
			ok, err = matchAny(doc, cond)
			ok = !ok
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("unsupported top-level operator %s", key)
			}
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func subFilters(cond any) ([]bson.M, error) {
	arr, ok := cond.(bson.A)
	if !ok {
		return nil, fmt.Errorf("logical operator expects an array, got %T", cond)
	}
	out := make([]bson.M, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(bson.M)
		if !ok {
			return nil, fmt.Errorf("logical operator element must be a document, got %T", el)
		}
		out = append(out, m)
	}
	return out, nil
}

func matchAll(doc bson.M, cond any) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := matchDoc(doc, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(doc bson.M, cond any) (bool, error) {
	filters, err := subFilters(cond)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := matchDoc(doc, f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func isOperatorDoc(v any) (bson.M, bool) {
	m, ok := v.(bson.M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchField(doc bson.M, path string, cond any) (bool, error) {
	values, found := lookup(doc, path)
	if ops, ok := isOperatorDoc(cond); ok {
		return matchOperators(values, found, ops)
	}
	return matchEq(values, found, cond), nil
}

// candidates expands array values so that a scalar condition matches an
// array field containing it, while whole-array equality still works.
func candidates(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if arr, ok := v.(bson.A); ok {
			out = append(out, arr...)
		}
	}
	return out
}

func matchEq(values []any, found bool, target any) bool {
	if isNull(target) && !found {
		return true
	}
	for _, c := range candidates(values) {
		if valuesEqual(c, target) {
			return true
		}
	}
	return false
}

func matchIn(values []any, found bool, list any) (bool, error) {
	arr, ok := list.(bson.A)
	if !ok {
		return false, fmt.Errorf("$in/$nin expects an array, got %T", list)
	}
	for _, target := range arr {
		if matchEq(values, found, target) {
			return true, nil
		}
	}
	return false, nil
}

func matchRange(values []any, target any, accept func(int) bool) bool {
	for _, v := range values {
		elems := []any{v}
		if arr, ok := v.(bson.A); ok {
			elems = arr
		}
		for _, el := range elems {
			if c, ok := compareValues(el, target); ok && accept(c) {
				return true
			}
		}
	}
	return false
}

func matchOperators(values []any, found bool, ops bson.M) (bool, error) {
	for op, arg := range ops {
		var ok bool
		var err error
		switch op {
		case "$eq":
			ok = matchEq(values, found, arg)
		case "$ne":
			ok = !matchEq(values, found, arg)
		case "$gt":
			ok = matchRange(values, arg, func(c int) bool { return c > 0 })
		case "$gte":
			ok = matchRange(values, arg, func(c int) bool { return c >= 0 })
		case "$lt":
			ok = matchRange(values, arg, func(c int) bool { return c < 0 })
		case "$lte":
			ok = matchRange(values, arg, func(c int) bool { return c <= 0 })
		case "$in":
			ok, err = matchIn(values, found, arg)
		case "$nin":
			ok, err = matchIn(values, found, arg)
			ok = !ok
		case "$exists":
			want, isBool := arg.(bool)
			if !isBool {
				return false, fmt.Errorf("$exists expects a bool, got %T", arg)
			}
			ok = found == want
		case "$all":
			arr, isArr := arg.(bson.A)
			if !isArr {
				return false, fmt.Errorf("$all expects an array, got %T", arg)
			}
			ok = len(arr) > 0
			for _, target := range arr {
				if !matchEq(values, found, target) {
					ok = false
					break
				}
			}
		case "$not":
			inner, isOps := isOperatorDoc(arg)
			if !isOps {
				return false, fmt.Errorf("$not expects an operator document")
			}
			ok, err = matchOperators(values, found, inner)
			ok = !ok
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
