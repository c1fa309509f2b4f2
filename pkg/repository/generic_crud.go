package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// Crud is the generic Repository over one synchronized collection.
type Crud[T any] struct {
	sync   *synchronizer.Synchronizer
	entity synchronizer.Entity
	prefix string
	limits query.Limits
}

var _ Repository[struct{}] = (*Crud[struct{}])(nil)

// NewCrud creates the repository for entity. prefix is used for generated
// ids.
func NewCrud[T any](s *synchronizer.Synchronizer, entity synchronizer.Entity, prefix string, limits query.Limits) *Crud[T] {
	return &Crud[T]{sync: s, entity: entity, prefix: prefix, limits: limits}
}

// Entity returns the entity definition the repository writes through.
func (r *Crud[T]) Entity() synchronizer.Entity { return r.entity }

func (r *Crud[T]) coll() document.Collection {
	return r.sync.Store().Collection(r.entity.Collection)
}

// KnownRelations lists the relations maintained on this collection.
func (r *Crud[T]) KnownRelations() []string {
	return r.sync.Registry().Relations()[r.entity.Collection]
}

func (r *Crud[T]) projection(expand []string) bson.M {
	return relations.Projection(expand, r.KnownRelations())
}

// Get returns the entity with the given id or handle, or nil when absent.
func (r *Crud[T]) Get(ctx context.Context, idOrHandle string, opts Options) (*T, error) {
	doc, err := r.coll().FindOne(ctx, document.ByIDOrHandle(idOrHandle), r.projection(opts.Expand))
	if errors.Is(err, document.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", r.entity.Collection, idOrHandle, err)
	}
	return Decode[T](relations.ExpandOne(doc, opts.Expand))
}

// GetBulk returns one position per ref, in input order, nil where nothing
// matched.
func (r *Crud[T]) GetBulk(ctx context.Context, refs []string, opts Options) ([]*T, error) {
	out := make([]*T, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	in := bson.A{}
	for _, ref := range refs {
		in = append(in, ref)
	}
	docs, err := r.coll().Find(ctx, bson.M{"$or": bson.A{
		bson.M{document.IDField: bson.M{"$in": in}},
		bson.M{"handle": bson.M{"$in": in}},
	}}, document.FindOptions{Projection: r.projection(opts.Expand)})
	if err != nil {
		return nil, fmt.Errorf("get bulk %s: %w", r.entity.Collection, err)
	}
	byRef := make(map[string]bson.M, len(docs)*2)
	for _, d := range docs {
		if id, ok := d[document.IDField].(string); ok {
			byRef[id] = d
		}
		if h, ok := d["handle"].(string); ok && h != "" {
			byRef[h] = d
		}
	}
	for i, ref := range refs {
		d, ok := byRef[ref]
		if !ok {
			continue
		}
		item, err := Decode[T](relations.ExpandOne(d, opts.Expand))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

// List runs q against the collection.
func (r *Crud[T]) List(ctx context.Context, q query.Query) ([]T, error) {
	return r.ListWhere(ctx, nil, q)
}

// ListWhere runs q restricted by an extra native filter.
func (r *Crud[T]) ListWhere(ctx context.Context, base bson.M, q query.Query) ([]T, error) {
	docs, err := r.FindDocs(ctx, base, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}

// FindDocs returns the expanded, sanitized documents for q within base.
func (r *Crud[T]) FindDocs(ctx context.Context, base bson.M, q query.Query) ([]bson.M, error) {
	n, err := query.Translate(q, r.limits)
	if err != nil {
		return nil, err
	}
	docs, err := r.coll().Find(ctx, query.And(base, n.Filter), document.FindOptions{
		Sort:       n.Sort,
		Limit:      n.Limit,
		Projection: r.projection(q.Expand),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.entity.Collection, err)
	}
	if n.ReverseSign < 0 {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}
	return relations.Expand(docs, q.Expand), nil
}

// Count returns how many documents match q's filter.
func (r *Crud[T]) Count(ctx context.Context, q query.Query) (int64, error) {
	return r.CountWhere(ctx, nil, q)
}

// CountWhere counts q's matches restricted by an extra native filter.
func (r *Crud[T]) CountWhere(ctx context.Context, base bson.M, q query.Query) (int64, error) {
	f, err := query.Filter(q)
	if err != nil {
		return 0, err
	}
	n, err := r.coll().Count(ctx, query.And(base, f))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.entity.Collection, err)
	}
	return n, nil
}

// Save upserts entity, assigning a fresh id when it has none.
func (r *Crud[T]) Save(ctx context.Context, entity *T, searchTerms ...string) error {
	doc, err := r.prepare(entity)
	if err != nil {
		return err
	}
	return r.sync.Upsert(ctx, r.entity, doc, searchTerms)
}

// Upsert is Save reporting success as a bool. The cause of a failure is
// logged by the synchronizer.
func (r *Crud[T]) Upsert(ctx context.Context, entity *T, searchTerms ...string) bool {
	return r.Save(ctx, entity, searchTerms...) == nil
}

// Delete removes the entity with the given id or handle; a miss is not an
// error.
func (r *Crud[T]) Delete(ctx context.Context, idOrHandle string) error {
	return r.sync.Remove(ctx, r.entity, idOrHandle)
}

// Remove is Delete reporting success as a bool.
func (r *Crud[T]) Remove(ctx context.Context, idOrHandle string) bool {
	return r.Delete(ctx, idOrHandle) == nil
}

// prepare encodes entity and writes a generated id back into it.
func (r *Crud[T]) prepare(entity *T) (bson.M, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil %s entity", synchronizer.ErrInvalid, r.entity.Collection)
	}
	doc, err := Encode(entity)
	if err != nil {
		return nil, err
	}
	if id, _ := doc["id"].(string); id == "" {
		doc["id"] = ids.New(r.prefix)
		if err := decodeInto(doc, entity); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Encode converts an entity to a document through its bson encoding.
func Encode(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	out := bson.M{}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// Decode converts a document into T.
func Decode[T any](doc bson.M) (*T, error) {
	if doc == nil {
		return nil, nil
	}
	out := new(T)
	if err := decodeInto(doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeAll converts documents into values of T.
func DecodeAll[T any](docs []bson.M) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		item, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}

func decodeInto(doc bson.M, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
