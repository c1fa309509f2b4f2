package catalog

import (
	"context"

	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
)

const (
	shippingPrefix = "ship"
	postPrefix     = "post"

	// DefaultStorefrontHandle names the storefront assembled on the fly
	// when none is configured.
	DefaultStorefrontHandle = "default-auto-generated-storefront"
)

// Storefronts stores sales channels. Every relation of a storefront is
// named on write.
type Storefronts struct {
	*repository.Crud[Storefront]
	d *Driver
}

func newStorefronts(d *Driver) *Storefronts {
	e := synchronizer.Entity{
		Collection: CollStorefronts,
		Media:      true,
		Explicit: []synchronizer.Explicit{
			{Field: RelProducts, Target: CollProducts, TokenPrefix: productPrefix},
			{Field: RelCollections, Target: CollCollections, TokenPrefix: collectionPrefix},
			{Field: RelDiscounts, Target: CollDiscounts, TokenPrefix: discountPrefix},
			{Field: RelShippingMethods, Target: CollShippingMethods, TokenPrefix: shippingPrefix},
			{Field: RelPosts, Target: CollPosts, TokenPrefix: postPrefix},
		},
	}
	d.sync.RegisterEntity(e)
	return &Storefronts{
		Crud: repository.NewCrud[Storefront](d.sync, e, ids.PrefixStorefront, d.limits),
		d:    d,
	}
}

func (s *Storefronts) ListProducts(ctx context.Context, idOrHandle string) ([]Product, error) {
	return related[Product](ctx, s.d, CollStorefronts, idOrHandle, RelProducts)
}

func (s *Storefronts) ListCollections(ctx context.Context, idOrHandle string) ([]Collection, error) {
	return related[Collection](ctx, s.d, CollStorefronts, idOrHandle, RelCollections)
}

func (s *Storefronts) ListDiscounts(ctx context.Context, idOrHandle string) ([]discount.Discount, error) {
	return related[discount.Discount](ctx, s.d, CollStorefronts, idOrHandle, RelDiscounts)
}

func (s *Storefronts) ListShippingMethods(ctx context.Context, idOrHandle string) ([]ShippingMethod, error) {
	return related[ShippingMethod](ctx, s.d, CollStorefronts, idOrHandle, RelShippingMethods)
}

func (s *Storefronts) ListPosts(ctx context.Context, idOrHandle string) ([]Post, error) {
	return related[Post](ctx, s.d, CollStorefronts, idOrHandle, RelPosts)
}

// DefaultAutoGenerated assembles an unsaved storefront from every active
// collection, shipping method and automatic discount, plus the latest
// posts.
func (s *Storefronts) DefaultAutoGenerated(ctx context.Context) (*Storefront, error) {
	all := query.Query{Filters: []query.Predicate{activeFilter()}, Limit: s.d.limits.MaxPageSize}

	cols, err := s.d.Collections.List(ctx, all)
	if err != nil {
		return nil, err
	}
	ships, err := s.d.ShippingMethods.List(ctx, all)
	if err != nil {
		return nil, err
	}
	auto := all
	auto.Filters = append([]query.Predicate{
		{Field: "application", Op: query.OpEq, Value: string(discount.Automatic)},
	}, all.Filters...)
	discounts, err := s.d.Discounts.List(ctx, auto)
	if err != nil {
		return nil, err
	}
	posts, err := s.d.Posts.List(ctx, query.Query{SortBy: []string{"-updated_at", "-id"}, Limit: s.d.limits.DefaultPageSize})
	if err != nil {
		return nil, err
	}
	return &Storefront{
		Base: Base{
			Handle: DefaultStorefrontHandle,
			Title:  "Default Auto Generated Storefront",
			Active: true,
		},
		Collections:     cols,
		ShippingMethods: ships,
		Discounts:       discounts,
		Posts:           posts,
	}, nil
}
