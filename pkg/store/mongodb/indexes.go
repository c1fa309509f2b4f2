package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionIndexes describes the indexes a collection needs: the relation
// names whose id sets are queried during fan-out updates.
type CollectionIndexes struct {
	Collection string
	Relations  []string
}

// IndexModels returns the index set for one collection: unique sparse handle,
// the default (updated_at, _id) sort, the search token multikey index and one
// multikey index per maintained relation id set.
func IndexModels(relations []string) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "handle", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("handle_unique"),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("updated_at_id"),
		},
		{
			Keys:    bson.D{{Key: "_relations.search", Value: 1}},
			Options: options.Index().SetName("relations_search"),
		},
	}
	for _, rel := range relations {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "_relations." + rel + ".ids", Value: 1}},
			Options: options.Index().SetName("relations_" + rel + "_ids"),
		})
	}
	return models
}

// EnsureIndexes creates every collection's indexes. It is idempotent.
func (a *Adapter) EnsureIndexes(ctx context.Context, specs []CollectionIndexes) error {
	if a.isClosed() {
		return ErrClosed
	}
	for _, spec := range specs {
		opCtx, cancel := a.OperationContext(ctx)
		names, err := a.Collection(spec.Collection).Indexes().CreateMany(opCtx, IndexModels(spec.Relations))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", spec.Collection, err)
		}
		a.logger.Info("MongoDB indexes ensured", "collection", spec.Collection, "indexes", names)
	}
	return nil
}
