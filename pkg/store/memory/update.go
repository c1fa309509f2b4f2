package memory

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

var updateOrder = []string{"$setOnInsert", "$set", "$unset", "$inc", "$addToSet", "$push", "$pull", "$pullAll"}

// applyUpdate mutates doc in place with MongoDB update operators.
// $setOnInsert only applies when inserting is true.
func applyUpdate(doc bson.M, update bson.M, inserting bool) error {
	for key := range update {
		if !strings.HasPrefix(key, "$") {
			return fmt.Errorf("update document must only contain operators, found %q", key)
		}
		known := false
		for _, op := range updateOrder {
			if op == key {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unsupported update operator %s", key)
		}
	}

	for _, op := range updateOrder {
		raw, ok := update[op]
		if !ok {
			continue
		}
		fields, ok := raw.(bson.M)
		if !ok {
			return fmt.Errorf("%s expects a document, got %T", op, raw)
		}
		for path, val := range fields {
			if path == IDField && op != "$setOnInsert" {
				if cur, ok := doc[IDField]; ok && !valuesEqual(cur, val) && op == "$set" {
					return fmt.Errorf("cannot modify immutable field %s", IDField)
				}
			}
			if err := applyOp(doc, op, path, val, inserting); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOp(doc bson.M, op, path string, val any, inserting bool) error {
	switch op {
	case "$setOnInsert":
		if inserting {
			return setPath(doc, path, val)
		}
		return nil
	case "$set":
		return setPath(doc, path, val)
	case "$unset":
		unsetPath(doc, path)
		return nil
	case "$inc":
		delta, ok := toFloat64(val)
		if !ok {
			return fmt.Errorf("$inc expects a number for %s", path)
		}
		cur, found := getPath(doc, path)
		if !found {
			return setPath(doc, path, val)
		}
		curInt, curIsInt := cur.(int64)
		deltaInt, deltaIsInt := val.(int64)
		if curIsInt && deltaIsInt {
			return setPath(doc, path, curInt+deltaInt)
		}
		curF, ok := toFloat64(cur)
		if !ok {
			return fmt.Errorf("cannot $inc non-numeric field %s", path)
		}
		return setPath(doc, path, curF+delta)
	case "$addToSet", "$push":
		arr, err := arrayAt(doc, path)
		if err != nil {
			return err
		}
		items := bson.A{val}
		if mod, ok := val.(bson.M); ok {
			if each, hasEach := mod["$each"]; hasEach {
				eachArr, ok := each.(bson.A)
				if !ok {
					return fmt.Errorf("$each expects an array for %s", path)
				}
				items = eachArr
			}
		}
		for _, item := range items {
			if op == "$addToSet" && containsValue(arr, item) {
				continue
			}
			arr = append(arr, item)
		}
		return setPath(doc, path, arr)
	case "$pull", "$pullAll":
		cur, found := getPath(doc, path)
		if !found {
			return nil
		}
		arr, ok := cur.(bson.A)
		if !ok {
			return fmt.Errorf("cannot %s from non-array field %s", op, path)
		}
		keep := make(bson.A, 0, len(arr))
		for _, el := range arr {
			remove, err := pullMatches(op, el, val)
			if err != nil {
				return err
			}
			if !remove {
				keep = append(keep, el)
			}
		}
		return setPath(doc, path, keep)
	}
	return fmt.Errorf("unsupported update operator %s", op)
}

func pullMatches(op string, el, cond any) (bool, error) {
	if op == "$pullAll" {
		list, ok := cond.(bson.A)
		if !ok {
			return false, fmt.Errorf("$pullAll expects an array")
		}
		return containsValue(list, el), nil
	}
	if ops, ok := isOperatorDoc(cond); ok {
		return matchOperators([]any{el}, true, ops)
	}
	return valuesEqual(el, cond), nil
}

func containsValue(arr bson.A, v any) bool {
	for _, el := range arr {
		if valuesEqual(el, v) {
			return true
		}
	}
	return false
}

func arrayAt(doc bson.M, path string) (bson.A, error) {
	cur, found := getPath(doc, path)
	if !found || cur == nil {
		return bson.A{}, nil
	}
	arr, ok := cur.(bson.A)
	if !ok {
		return nil, fmt.Errorf("field %s is not an array", path)
	}
	return append(bson.A{}, arr...), nil
}

func getPath(doc bson.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(bson.M)
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

func setPath(doc bson.M, path string, val any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			child := bson.M{}
			cur[p] = child
			cur = child
			continue
		}
		child, ok := next.(bson.M)
		if !ok {
			return fmt.Errorf("cannot create field %s in non-document %s", path, p)
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = normalize(val)
	return nil
}

func unsetPath(doc bson.M, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := cur[p].(bson.M)
		if !ok {
			return
		}
		cur = child
	}
	delete(cur, parts[len(parts)-1])
}

// project applies an exclusion ({path: 0}) or inclusion ({path: 1})
// projection. _id is always kept by inclusion projections.
func project(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}
	inclusion := false
	for _, v := range projection {
		if f, ok := toFloat64(normalize(v)); ok && f != 0 {
			inclusion = true
		} else if b, ok := v.(bool); ok && b {
			inclusion = true
		}
		break
	}
	if !inclusion {
		for path := range projection {
			unsetPath(doc, path)
		}
		return doc
	}
	out := bson.M{}
	if id, ok := doc[IDField]; ok {
		out[IDField] = id
	}
	for path := range projection {
		if v, ok := getPath(doc, path); ok {
			_ = setPath(out, path, v)
		}
	}
	return out
}
