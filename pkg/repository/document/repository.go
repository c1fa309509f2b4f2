// Package document defines the document-store contract the relation layer is
// written against: named collections of bson documents plus multi-document
// atomic transactions.
//
// Filters, sorts, projections and updates use MongoDB's native operator
// vocabulary expressed with bson.M / bson.D values, so any store satisfying
// this contract can be driven by the same translated queries.
package document

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// ErrNotFound is returned by FindOne when nothing matches.
var ErrNotFound = errors.New("document not found")

// IDField is the primary key field of every stored document.
const IDField = "_id"

// FindOptions controls ordering, page size and projection of Find.
type FindOptions struct {
	Sort       bson.D
	Limit      int64
	Projection bson.M
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	Matched  int64
	Modified int64
	Upserted bool
}

// Collection is a single named set of documents.
type Collection interface {
	Name() string
	FindOne(ctx context.Context, filter bson.M, projection bson.M) (bson.M, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	// ReplaceOne replaces the whole body of the first match. With upsert the
	// document is inserted when nothing matches.
	ReplaceOne(ctx context.Context, filter bson.M, doc bson.M, upsert bool) (UpdateResult, error)
	UpdateOne(ctx context.Context, filter bson.M, update bson.M, upsert bool) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter bson.M, update bson.M) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
}

// Store hands out collections and runs transactions.
type Store interface {
	Collection(name string) Collection

	// WithTransaction runs fn inside one atomic multi-document transaction.
	// Collection calls made with the ctx passed to fn take part in the
	// transaction. If fn returns an error nothing it wrote becomes visible.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	Ping(ctx context.Context) error
}

// ByIDOrHandle matches a document by primary key or by its handle.
func ByIDOrHandle(v string) bson.M {
	return bson.M{"$or": bson.A{bson.M{IDField: v}, bson.M{"handle": v}}}
}
