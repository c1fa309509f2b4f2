package mongodb_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/docsync/pkg/catalog"
	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/observability/logger"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/store/mongodb"
	"github.com/nimburion/docsync/pkg/testutil"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestMongoStore_Integration runs the catalog against a single-node replica
// set, since multi-document transactions need one.
func TestMongoStore_Integration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	uri := testutil.ExternalMongoURI()
	if uri == "" {
		uri = startReplicaSet(ctx, t)
	}

	log, err := logger.NewZapLogger(logger.Config{Level: logger.InfoLevel, Format: logger.JSONFormat})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	adapter, err := mongodb.NewAdapter(mongodb.Config{
		URL:                uri,
		Database:           "docsync_it_" + primitive.NewObjectID().Hex(),
		OperationTimeout:   10 * time.Second,
		TransactionTimeout: 30 * time.Second,
	}, log)
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}
	defer adapter.Close()
	defer func() { _ = adapter.Database().Drop(context.Background()) }()

	st, err := document.NewMongoStore(adapter)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	d := catalog.New(st, catalog.WithLogger(log))

	t.Run("EnsureIndexes", func(t *testing.T) {
		if err := adapter.EnsureIndexes(ctx, d.IndexSpecs()); err != nil {
			t.Fatalf("ensure indexes: %v", err)
		}
		// idempotent
		if err := adapter.EnsureIndexes(ctx, d.IndexSpecs()); err != nil {
			t.Fatalf("ensure indexes twice: %v", err)
		}
	})

	t.Run("RelationsFollowWrites", func(t *testing.T) {
		if err := d.Collections.Save(ctx, &catalog.Collection{Base: catalog.Base{ID: "col_1", Handle: "summer", Title: "Summer"}}); err != nil {
			t.Fatalf("save collection: %v", err)
		}
		p := &catalog.Product{
			Base:        catalog.Base{ID: "pr_1", Handle: "shoe", Title: "Shoe", Active: true},
			Price:       10,
			Collections: []catalog.Collection{{Base: catalog.Base{ID: "col_1"}}},
		}
		if err := d.Products.Save(ctx, p); err != nil {
			t.Fatalf("save product: %v", err)
		}
		from, to := 0.0, 15.0
		if err := d.Discounts.Save(ctx, &discount.Discount{
			ID: "dis_1", Handle: "cheap", Active: true,
			Application: discount.Automatic, Type: discount.TypeRegular,
			Filters: []discount.Filter{{Op: discount.OpInPriceRange, From: &from, To: &to}},
		}); err != nil {
			t.Fatalf("save discount: %v", err)
		}

		got, err := d.Products.Get(ctx, "shoe", repository.Options{Expand: []string{"*"}})
		if err != nil || got == nil {
			t.Fatalf("get product: %v %v", got, err)
		}
		if len(got.Collections) != 1 || got.Collections[0].Title != "Summer" {
			t.Fatalf("unexpected collections: %+v", got.Collections)
		}
		if len(got.Discounts) != 1 || got.Discounts[0].ID != "dis_1" {
			t.Fatalf("unexpected discounts: %+v", got.Discounts)
		}

		if ok := d.Collections.Remove(ctx, "col_1"); !ok {
			t.Fatal("remove collection failed")
		}
		n, err := d.Products.CountWhere(ctx, bson.M{"_relations.collections.ids": "col_1"}, query.Query{})
		if err != nil {
			t.Fatalf("count holders: %v", err)
		}
		if n != 0 {
			t.Fatalf("collection still linked from %d products", n)
		}
	})

	t.Run("AbortedTransactionLeavesNoTrace", func(t *testing.T) {
		err := d.Products.Save(ctx, &catalog.Product{Base: catalog.Base{ID: "pr_2", Handle: "orphan"}, ParentID: "pr_missing"})
		if err == nil {
			t.Fatal("expected unknown parent to abort the write")
		}
		got, err := d.Products.Get(ctx, "pr_2", repository.Options{})
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Fatalf("aborted write is visible: %+v", got)
		}
	})
}

func startReplicaSet(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("Failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	if !strings.Contains(uri, "directConnection") {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + "directConnection=true"
	}
	return uri
}
