package relations

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Expand hydrates the requested relations of each document into top-level
// fields and sanitizes the result. Entries are expanded one more level with
// the same request; nothing deeper is followed. Inputs are not modified.
func Expand(docs []bson.M, expand []string) []bson.M {
	out := make([]bson.M, len(docs))
	for i, d := range docs {
		if d == nil {
			continue
		}
		out[i] = expandDoc(d, expand, 1)
	}
	return out
}

// ExpandOne is Expand for a single document.
func ExpandOne(doc bson.M, expand []string) bson.M {
	if doc == nil {
		return nil
	}
	return expandDoc(doc, expand, 1)
}

func expandDoc(doc bson.M, expand []string, depth int) bson.M {
	rels := All(doc)
	out := Sanitize(doc)
	if len(expand) == 0 {
		return out
	}
	all := wants(expand, Wildcard)
	for name, r := range rels {
		if !all && !wants(expand, name) {
			continue
		}
		values := r.Values()
		arr := make(bson.A, 0, len(values))
		for _, v := range values {
			if depth > 0 {
				arr = append(arr, expandDoc(v, expand, depth-1))
			} else {
				arr = append(arr, Sanitize(v))
			}
		}
		out[name] = arr
	}
	return out
}

func wants(expand []string, name string) bool {
	for _, e := range expand {
		if e == name {
			return true
		}
	}
	return false
}

// Sanitize returns a shallow copy of doc without underscore-prefixed fields.
func Sanitize(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// Projection is the exclusion projection for a read with the given expand
// request. Relations not requested are never fetched; search never is
// when anything is expanded.
func Projection(expand []string, known []string) bson.M {
	if len(expand) == 0 {
		return bson.M{Field: 0}
	}
	p := bson.M{SearchPath: 0}
	if wants(expand, Wildcard) {
		return p
	}
	for _, name := range known {
		if !wants(expand, name) {
			p[Field+"."+name] = 0
		}
	}
	return p
}

// Snapshot is the copy of doc embedded into other documents' entries. It
// carries doc's own fields and raw lists only. Reference sets and the search
// set are dropped: they change without doc being written, so a nested copy
// of them could not be kept current.
func Snapshot(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		if k == "_id" || k == Field {
			continue
		}
		out[k] = v
	}
	raw := bson.M{}
	for name, r := range All(doc) {
		if r.Kind == KindRawList {
			raw[name] = r.Raw
		}
	}
	if len(raw) > 0 {
		out[Field] = raw
	}
	return out
}
