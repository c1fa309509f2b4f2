package catalog

import (
	"context"
	"fmt"

	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// Discounts stores discounts. Saving an automatic discount re-evaluates
// which products it applies to.
type Discounts struct {
	*repository.Crud[discount.Discount]
	d *Driver
}

func newDiscounts(d *Driver) *Discounts {
	ds := &Discounts{d: d}
	e := synchronizer.Entity{
		Collection: CollDiscounts,
		Media:      true,
		AfterSave:  ds.reconcile,
	}
	d.sync.RegisterEntity(e)
	ds.Crud = repository.NewCrud[discount.Discount](d.sync, e, ids.PrefixDiscount, d.limits)
	return ds
}

// reconcile unlinks the discount from products that no longer qualify and
// links it into every product that does.
func (ds *Discounts) reconcile(ctx context.Context, dr *synchronizer.Draft) error {
	model, err := repository.Decode[discount.Discount](dr.Doc)
	if err != nil {
		return err
	}
	tokens := discount.SearchTokens(*model)
	if prev, _ := dr.Previous["handle"].(string); prev != "" && prev != model.Handle {
		tokens = append(tokens, synchronizer.Token(discountPrefix, prev))
	}
	stale := bson.A{}
	for _, t := range tokens {
		stale = append(stale, t)
	}

	products := ds.d.sync.Store().Collection(CollProducts)
	holding := bson.M{relations.IDsPath(RelDiscounts): dr.ID}
	filter := discount.ToNativeFilter(*model)
	unlink := holding
	if filter != nil {
		unlink = bson.M{"$and": bson.A{holding, bson.M{"$nor": bson.A{filter}}}}
	}
	pulled, err := products.UpdateMany(ctx, unlink, bson.M{
		"$pull": bson.M{
			relations.IDsPath(RelDiscounts): dr.ID,
			relations.SearchPath:            bson.M{"$in": stale},
		},
		"$unset": bson.M{relations.EntryPath(RelDiscounts, dr.ID): ""},
	})
	if err != nil {
		return fmt.Errorf("unlink discount %s: %w", dr.ID, err)
	}
	if filter == nil {
		ds.d.sync.Metrics().AddFanout(CollProducts, pulled.Matched)
		return nil
	}

	fresh := bson.A{}
	for _, t := range discount.SearchTokens(*model) {
		fresh = append(fresh, t)
	}
	linked, err := products.UpdateMany(ctx, filter, bson.M{
		"$addToSet": bson.M{
			relations.IDsPath(RelDiscounts): dr.ID,
			relations.SearchPath:            bson.M{"$each": fresh},
		},
		"$set": bson.M{relations.EntryPath(RelDiscounts, dr.ID): relations.Snapshot(dr.Doc)},
	})
	if err != nil {
		return fmt.Errorf("link discount %s: %w", dr.ID, err)
	}
	ds.d.sync.Metrics().AddFanout(CollProducts, pulled.Matched+linked.Matched)
	return nil
}

// ListProducts lists the products a discount currently applies to.
func (ds *Discounts) ListProducts(ctx context.Context, idOrHandle string, q query.Query) ([]Product, error) {
	base, ok, err := ds.d.holderFilter(ctx, CollDiscounts, idOrHandle, RelDiscounts)
	if err != nil || !ok {
		return nil, err
	}
	return ds.d.Products.ListWhere(ctx, base, q)
}

// CountProducts counts the products a discount currently applies to.
func (ds *Discounts) CountProducts(ctx context.Context, idOrHandle string, q query.Query) (int64, error) {
	base, ok, err := ds.d.holderFilter(ctx, CollDiscounts, idOrHandle, RelDiscounts)
	if err != nil || !ok {
		return 0, err
	}
	return ds.d.Products.CountWhere(ctx, base, q)
}
