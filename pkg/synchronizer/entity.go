package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// Explicit is an outgoing relation named directly in a write payload. The
// payload field of the same name lists referenced documents (ids, handles
// or objects carrying either); it is replaced by the relation on write.
type Explicit struct {
	Field       string
	Target      string
	TokenPrefix string
}

// Draft is a document being upserted, as seen by entity hooks.
type Draft struct {
	ID       string
	Doc      bson.M
	Previous bson.M
	Tokens   []string
}

// AddTokens folds extra search tokens into the draft.
func (d *Draft) AddTokens(tokens ...string) {
	d.Tokens = append(d.Tokens, tokens...)
}

// Entity describes how one collection is synchronized.
type Entity struct {
	Collection string
	Explicit   []Explicit
	// Derived names payload fields that only expansion populates. They are
	// dropped on write.
	Derived []string
	// Media reports the document's media list on upsert.
	Media bool
	// BeforeSave computes implicit relations. It runs after explicit
	// relations are resolved and before the copy is propagated.
	BeforeSave func(ctx context.Context, d *Draft) error
	// AfterSave runs after the document is written.
	AfterSave func(ctx context.Context, d *Draft) error
	// BeforeRemove runs before references are unlinked and the document is
	// deleted.
	BeforeRemove func(ctx context.Context, doc bson.M) error
}

// RegisterEntity registers the holders implied by e's explicit relations.
func (s *Synchronizer) RegisterEntity(e Entity) {
	for _, x := range e.Explicit {
		s.registry.Register(x.Target, Embedding{
			Store:       s.store,
			OwnerName:   e.Collection,
			Name:        x.Field,
			TokenPrefix: x.TokenPrefix,
		})
	}
}

// Upsert writes doc with full replace semantics and synchronizes every
// relation touching it. doc must carry its "id".
func (s *Synchronizer) Upsert(ctx context.Context, e Entity, doc bson.M, searchTerms []string) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return fmt.Errorf("%w: %s document without id", ErrInvalid, e.Collection)
	}
	return s.Run(ctx, OpUpsert, e.Collection, id, func(ctx context.Context) error {
		return s.UpsertInTx(ctx, e, doc, searchTerms)
	})
}

// UpsertInTx is Upsert for callers already inside a transaction.
func (s *Synchronizer) UpsertInTx(ctx context.Context, e Entity, doc bson.M, searchTerms []string) error {
	id, _ := doc["id"].(string)
	previous, err := s.loadByID(ctx, e.Collection, id)
	if err != nil {
		return err
	}

	d := &Draft{ID: id, Doc: copyDoc(doc), Previous: previous}
	d.Doc[document.IDField] = id
	for _, f := range e.Derived {
		delete(d.Doc, f)
	}
	s.stamp(d)
	s.carryRelations(d)
	d.AddTokens(searchTerms...)
	d.AddTokens(DeriveTokens(d.Doc)...)

	for _, x := range e.Explicit {
		if err := s.resolveExplicit(ctx, d, x); err != nil {
			return err
		}
	}
	if e.BeforeSave != nil {
		if err := e.BeforeSave(ctx, d); err != nil {
			return err
		}
	}
	relations.SetSearch(d.Doc, d.Tokens)

	if _, err := s.Propagate(ctx, e.Collection, d.Doc, previous); err != nil {
		return err
	}
	if e.Media {
		if err := s.media.Report(ctx, d.Doc); err != nil {
			return err
		}
	}
	if _, err := s.store.Collection(e.Collection).ReplaceOne(ctx, bson.M{document.IDField: id}, d.Doc, true); err != nil {
		return fmt.Errorf("save %s %s: %w", e.Collection, id, err)
	}
	if e.AfterSave != nil {
		return e.AfterSave(ctx, d)
	}
	return nil
}

// Remove deletes the document matching idOrHandle and unlinks it from every
// holder. A missing document is a no-op.
func (s *Synchronizer) Remove(ctx context.Context, e Entity, idOrHandle string) error {
	return s.Run(ctx, OpRemove, e.Collection, idOrHandle, func(ctx context.Context) error {
		doc, err := s.Find(ctx, e.Collection, idOrHandle)
		if err != nil || doc == nil {
			return err
		}
		return s.RemoveInTx(ctx, e, doc)
	})
}

// RemoveInTx removes an already loaded document inside the caller's
// transaction.
func (s *Synchronizer) RemoveInTx(ctx context.Context, e Entity, doc bson.M) error {
	if e.BeforeRemove != nil {
		if err := e.BeforeRemove(ctx, doc); err != nil {
			return err
		}
	}
	id, _ := doc["id"].(string)
	if id == "" {
		id, _ = doc[document.IDField].(string)
	}
	handle, _ := doc["handle"].(string)
	if _, err := s.Unlink(ctx, e.Collection, id, handle); err != nil {
		return err
	}
	if _, err := s.store.Collection(e.Collection).DeleteOne(ctx, bson.M{document.IDField: doc[document.IDField]}); err != nil {
		return fmt.Errorf("delete %s %s: %w", e.Collection, id, err)
	}
	return nil
}

// Propagate pushes doc's fresh copy into every holder of collection.
func (s *Synchronizer) Propagate(ctx context.Context, collection string, doc, previous bson.M) (int64, error) {
	var total int64
	for _, h := range s.registry.Holders(collection) {
		n, err := h.PushReference(ctx, doc, previous)
		if err != nil {
			return total, fmt.Errorf("propagate %s into %s.%s: %w", collection, h.Owner(), h.Relation(), err)
		}
		s.metrics.AddFanout(h.Owner(), n)
		total += n
	}
	return total, nil
}

// Unlink removes id from every holder of collection, together with the
// holder tokens derived from id and handle.
func (s *Synchronizer) Unlink(ctx context.Context, collection, id, handle string) (int64, error) {
	var total int64
	for _, h := range s.registry.Holders(collection) {
		var tokens []string
		if e, ok := h.(Embedding); ok && e.TokenPrefix != "" {
			tokens = append(tokens, Token(e.TokenPrefix, id))
			if handle != "" {
				tokens = append(tokens, Token(e.TokenPrefix, handle))
			}
		}
		n, err := h.PullReference(ctx, id, tokens)
		if err != nil {
			return total, fmt.Errorf("unlink %s from %s.%s: %w", collection, h.Owner(), h.Relation(), err)
		}
		s.metrics.AddFanout(h.Owner(), n)
		total += n
	}
	return total, nil
}

// ResolveReferences loads the documents named by refs (ids or handles) from
// target and snapshots them into a reference set, in refs order. Unknown
// references are skipped.
func (s *Synchronizer) ResolveReferences(ctx context.Context, target string, refs []string) (relations.Relation, []bson.M, error) {
	rel := relations.NewReferenceSet()
	if len(refs) == 0 {
		return rel, nil, nil
	}
	in := bson.A{}
	for _, r := range refs {
		in = append(in, r)
	}
	docs, err := s.store.Collection(target).Find(ctx, bson.M{"$or": bson.A{
		bson.M{document.IDField: bson.M{"$in": in}},
		bson.M{"handle": bson.M{"$in": in}},
	}}, document.FindOptions{})
	if err != nil {
		return rel, nil, fmt.Errorf("resolve %s references: %w", target, err)
	}
	byRef := map[string]bson.M{}
	for _, d := range docs {
		if id, ok := d["id"].(string); ok {
			byRef[id] = d
		}
		if h, ok := d["handle"].(string); ok && h != "" {
			byRef[h] = d
		}
	}
	var found []bson.M
	for _, r := range refs {
		d, ok := byRef[r]
		if !ok {
			continue
		}
		id, _ := d["id"].(string)
		if rel.Has(id) {
			continue
		}
		rel.Put(id, relations.Snapshot(d))
		found = append(found, d)
	}
	return rel, found, nil
}

func (s *Synchronizer) resolveExplicit(ctx context.Context, d *Draft, x Explicit) error {
	raw, present := d.Doc[x.Field]
	delete(d.Doc, x.Field)
	if !present {
		// an absent field keeps the stored relation
		if r, ok := relations.Get(d.Doc, x.Field); ok {
			for _, id := range r.IDs {
				d.AddTokens(Token(x.TokenPrefix, id))
				if h, ok := r.Entries[id]["handle"].(string); ok {
					d.AddTokens(Token(x.TokenPrefix, h))
				}
			}
		}
		return nil
	}
	rel, found, err := s.ResolveReferences(ctx, x.Target, RefList(raw))
	if err != nil {
		return err
	}
	relations.Set(d.Doc, x.Field, rel)
	for _, f := range found {
		id, _ := f["id"].(string)
		d.AddTokens(Token(x.TokenPrefix, id))
		if h, ok := f["handle"].(string); ok {
			d.AddTokens(Token(x.TokenPrefix, h))
		}
	}
	return nil
}

func (s *Synchronizer) loadByID(ctx context.Context, collection, id string) (bson.M, error) {
	doc, err := s.store.Collection(collection).FindOne(ctx, bson.M{document.IDField: id}, nil)
	if errors.Is(err, document.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

func (s *Synchronizer) stamp(d *Draft) {
	now := s.Now()
	created, _ := d.Previous["created_at"].(string)
	if created == "" {
		created, _ = d.Doc["created_at"].(string)
	}
	if created == "" {
		created = now
	}
	d.Doc["created_at"] = created
	d.Doc["updated_at"] = now
}

// carryRelations starts the draft from the stored relations, which holds the
// relations maintained from the other side.
func (s *Synchronizer) carryRelations(d *Draft) {
	delete(d.Doc, relations.Field)
	for name, r := range relations.All(d.Previous) {
		relations.Set(d.Doc, name, r)
	}
}

// Token builds a "<prefix>:<value>" search token.
func Token(prefix, value string) string {
	if prefix == "" || value == "" {
		return ""
	}
	return prefix + ":" + value
}

// DeriveTokens returns the tokens every document carries: its id, handle,
// "tag:<t>" per tag and the lowercase words of its title.
func DeriveTokens(doc bson.M) []string {
	var out []string
	for _, k := range []string{"id", "handle"} {
		if v, ok := doc[k].(string); ok {
			out = append(out, v)
		}
	}
	for _, t := range RefList(doc["tags"]) {
		out = append(out, Token("tag", t))
	}
	if title, ok := doc["title"].(string); ok {
		out = append(out, strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...)
	}
	return out
}

// RefList extracts references from a payload field: strings are taken as
// is, objects contribute their id or else their handle.
func RefList(v any) []string {
	var items []any
	switch arr := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), arr...)
	case bson.A:
		items = arr
	case []any:
		items = arr
	case []bson.M:
		for _, m := range arr {
			items = append(items, m)
		}
	case []map[string]any:
		for _, m := range arr {
			items = append(items, bson.M(m))
		}
	default:
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch ref := it.(type) {
		case string:
			out = append(out, ref)
		case bson.M:
			out = appendRef(out, ref)
		case map[string]any:
			out = appendRef(out, ref)
		case bson.D:
			out = appendRef(out, ref.Map())
		}
	}
	return out
}

func appendRef(out []string, m map[string]any) []string {
	if id, ok := m["id"].(string); ok && id != "" {
		return append(out, id)
	}
	if h, ok := m["handle"].(string); ok && h != "" {
		return append(out, h)
	}
	return out
}

func copyDoc(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
