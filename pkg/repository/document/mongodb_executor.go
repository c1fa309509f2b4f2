package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/docsync/pkg/observability/tracing"
	mongostore "github.com/nimburion/docsync/pkg/store/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
)

// MongoStore adapts the store/mongodb adapter to the Store contract.
type MongoStore struct {
	adapter *mongostore.Adapter
}

// NewMongoStore creates a Store backed by a connected MongoDB adapter.
func NewMongoStore(adapter *mongostore.Adapter) (*MongoStore, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoStore{adapter: adapter}, nil
}

// Collection returns the named collection.
func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{adapter: s.adapter, coll: s.adapter.Collection(name)}
}

// WithTransaction delegates to the adapter's session transaction.
func (s *MongoStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.adapter.WithTransaction(ctx, fn)
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.adapter.Ping(ctx)
}

type mongoCollection struct {
	adapter *mongostore.Adapter
	coll    *mongo.Collection
}

func (c *mongoCollection) Name() string { return c.coll.Name() }

// begin starts the operation span and applies the operation timeout.
func (c *mongoCollection) begin(ctx context.Context, op tracing.SpanOperation) (context.Context, func(error)) {
	ctx, span := tracing.StartDatabaseSpan(ctx, op,
		tracing.WithDBSystem("mongodb"),
		tracing.WithDBName(c.coll.Database().Name()),
		tracing.WithDBCollection(c.coll.Name()),
	)
	opCtx, cancel := c.adapter.OperationContext(ctx)
	return opCtx, func(err error) {
		cancel()
		endSpan(span, err)
	}
}

func endSpan(span trace.Span, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	tracing.End(span, err)
}

func (c *mongoCollection) FindOne(ctx context.Context, filter bson.M, projection bson.M) (_ bson.M, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBQuery)
	defer func() { end(err) }()

	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	out := bson.M{}
	err = c.coll.FindOne(opCtx, nonNil(filter), opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mongoCollection) Find(ctx context.Context, filter bson.M, fo FindOptions) (_ []bson.M, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBQuery)
	defer func() { end(err) }()

	opts := options.Find()
	if len(fo.Sort) > 0 {
		opts.SetSort(fo.Sort)
	}
	if fo.Limit > 0 {
		opts.SetLimit(fo.Limit)
	}
	if len(fo.Projection) > 0 {
		opts.SetProjection(fo.Projection)
	}
	cur, err := c.coll.Find(opCtx, nonNil(filter), opts)
	if err != nil {
		return nil, err
	}
	out := []bson.M{}
	if err = cur.All(opCtx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mongoCollection) Count(ctx context.Context, filter bson.M) (n int64, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBQuery)
	defer func() { end(err) }()
	return c.coll.CountDocuments(opCtx, nonNil(filter))
}

func (c *mongoCollection) ReplaceOne(ctx context.Context, filter bson.M, doc bson.M, upsert bool) (_ UpdateResult, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBUpdate)
	defer func() { end(err) }()
	res, err := c.coll.ReplaceOne(opCtx, nonNil(filter), doc, options.Replace().SetUpsert(upsert))
	return toUpdateResult(res, err)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter bson.M, update bson.M, upsert bool) (_ UpdateResult, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBUpdate)
	defer func() { end(err) }()
	res, err := c.coll.UpdateOne(opCtx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	return toUpdateResult(res, err)
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (_ UpdateResult, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBUpdate)
	defer func() { end(err) }()
	res, err := c.coll.UpdateMany(opCtx, nonNil(filter), update)
	return toUpdateResult(res, err)
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter bson.M) (_ int64, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBDelete)
	defer func() { end(err) }()
	res, err := c.coll.DeleteOne(opCtx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter bson.M) (_ int64, err error) {
	opCtx, end := c.begin(ctx, tracing.SpanOperationDBDelete)
	defer func() { end(err) }()
	res, err := c.coll.DeleteMany(opCtx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func toUpdateResult(res *mongo.UpdateResult, err error) (UpdateResult, error) {
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
		Upserted: res.UpsertedCount > 0,
	}, nil
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
