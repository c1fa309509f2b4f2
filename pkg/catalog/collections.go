package catalog

import (
	"context"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
)

// Collections stores product collections. Saving one refreshes its copy in
// every product and storefront.
type Collections struct {
	*repository.Crud[Collection]
	d *Driver
}

func newCollections(d *Driver) *Collections {
	e := synchronizer.Entity{Collection: CollCollections, Media: true}
	d.sync.RegisterEntity(e)
	return &Collections{
		Crud: repository.NewCrud[Collection](d.sync, e, ids.PrefixCollection, d.limits),
		d:    d,
	}
}

// ListProducts lists the products of a collection.
func (c *Collections) ListProducts(ctx context.Context, idOrHandle string, q query.Query) ([]Product, error) {
	base, ok, err := c.d.holderFilter(ctx, CollCollections, idOrHandle, RelCollections)
	if err != nil || !ok {
		return nil, err
	}
	return c.d.Products.ListWhere(ctx, base, q)
}

// CountProducts counts the products of a collection.
func (c *Collections) CountProducts(ctx context.Context, idOrHandle string, q query.Query) (int64, error) {
	base, ok, err := c.d.holderFilter(ctx, CollCollections, idOrHandle, RelCollections)
	if err != nil || !ok {
		return 0, err
	}
	return c.d.Products.CountWhere(ctx, base, q)
}
