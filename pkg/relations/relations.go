// Package relations models the per-document _relations structure: named
// reference sets of ids with embedded entries, raw legacy lists, and the
// search token set.
package relations

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	// Field is the reserved sub-document holding every relation.
	Field = "_relations"
	// Search is the token-set relation.
	Search = "search"
	// Wildcard expands every relation.
	Wildcard = "*"
)

// Kind discriminates the stored shape of a relation.
type Kind int

const (
	KindReferenceSet Kind = iota
	KindRawList
)

// Relation is a decoded relation value.
type Relation struct {
	Kind    Kind
	IDs     []string
	Entries map[string]bson.M
	Raw     bson.A
}

// NewReferenceSet returns an empty reference set.
func NewReferenceSet() Relation {
	return Relation{Kind: KindReferenceSet, Entries: map[string]bson.M{}}
}

// Put adds or replaces the entry for id.
func (r *Relation) Put(id string, entry bson.M) {
	if r.Entries == nil {
		r.Entries = map[string]bson.M{}
	}
	if _, ok := r.Entries[id]; !ok {
		r.IDs = append(r.IDs, id)
	}
	r.Entries[id] = entry
}

// Has reports whether id is referenced.
func (r Relation) Has(id string) bool {
	for _, v := range r.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Values returns entries in ids order.
func (r Relation) Values() []bson.M {
	if r.Kind == KindRawList {
		out := make([]bson.M, 0, len(r.Raw))
		for _, v := range r.Raw {
			if m, ok := asMap(v); ok {
				out = append(out, m)
			}
		}
		return out
	}
	out := make([]bson.M, 0, len(r.IDs))
	for _, id := range r.IDs {
		if e, ok := r.Entries[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Encode returns the stored form.
func (r Relation) Encode() any {
	if r.Kind == KindRawList {
		return r.Raw
	}
	ids := make(bson.A, 0, len(r.IDs))
	for _, id := range r.IDs {
		ids = append(ids, id)
	}
	entries := make(bson.M, len(r.Entries))
	for id, e := range r.Entries {
		entries[id] = e
	}
	return bson.M{"ids": ids, "entries": entries}
}

// Decode resolves a stored relation value.
func Decode(v any) (Relation, bool) {
	switch val := v.(type) {
	case bson.A:
		return Relation{Kind: KindRawList, Raw: val}, true
	case []any:
		return Relation{Kind: KindRawList, Raw: bson.A(val)}, true
	}
	m, ok := asMap(v)
	if !ok {
		return Relation{}, false
	}
	r := NewReferenceSet()
	for _, id := range stringList(m["ids"]) {
		r.IDs = append(r.IDs, id)
	}
	if entries, ok := asMap(m["entries"]); ok {
		for id, e := range entries {
			if em, ok := asMap(e); ok {
				r.Entries[id] = em
			}
		}
	}
	return r, true
}

// All decodes every relation of doc except search.
func All(doc bson.M) map[string]Relation {
	raw, ok := asMap(doc[Field])
	if !ok {
		return nil
	}
	out := make(map[string]Relation, len(raw))
	for name, v := range raw {
		if name == Search {
			continue
		}
		if r, ok := Decode(v); ok {
			out[name] = r
		}
	}
	return out
}

// Get decodes one relation of doc.
func Get(doc bson.M, name string) (Relation, bool) {
	raw, ok := asMap(doc[Field])
	if !ok {
		return Relation{}, false
	}
	v, ok := raw[name]
	if !ok {
		return Relation{}, false
	}
	return Decode(v)
}

// Set stores r as the named relation of doc.
func Set(doc bson.M, name string, r Relation) {
	rel := ensure(doc)
	rel[name] = r.Encode()
}

// SearchTokens returns the search token set of doc.
func SearchTokens(doc bson.M) []string {
	raw, ok := asMap(doc[Field])
	if !ok {
		return nil
	}
	return stringList(raw[Search])
}

// SetSearch stores the deduplicated, sorted token set.
func SetSearch(doc bson.M, tokens []string) {
	uniq := Dedup(tokens)
	arr := make(bson.A, len(uniq))
	for i, t := range uniq {
		arr[i] = t
	}
	ensure(doc)[Search] = arr
}

// Dedup lowercases, trims and deduplicates tokens, dropping empties.
func Dedup(tokens []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func ensure(doc bson.M) bson.M {
	if rel, ok := asMap(doc[Field]); ok {
		// asMap may have converted a map[string]any
		doc[Field] = rel
		return rel
	}
	rel := bson.M{}
	doc[Field] = rel
	return rel
}

// IDsPath is the update path of a relation's id set.
func IDsPath(name string) string { return Field + "." + name + ".ids" }

// EntryPath is the update path of one embedded entry.
func EntryPath(name, id string) string { return Field + "." + name + ".entries." + id }

// SearchPath is the update path of the search token set.
const SearchPath = Field + "." + Search

func asMap(v any) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]any:
		return bson.M(m), true
	case bson.D:
		out := make(bson.M, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}

func stringList(v any) []string {
	var items []any
	switch arr := v.(type) {
	case bson.A:
		items = arr
	case []any:
		items = arr
	case []string:
		return append([]string(nil), arr...)
	default:
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
