package catalog

import (
	"context"
	"testing"

	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/repository"
)

func TestStorefronts_RelatedLists(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_1", Handle: "summer"}})
	mustSave[ShippingMethod](t, d.ShippingMethods, &ShippingMethod{Base: Base{ID: "ship_1", Handle: "express"}, Name: "Express", Price: 5})
	mustSave[Post](t, d.Posts, &Post{Base: Base{ID: "post_1", Handle: "about"}, Text: "hello"})
	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{ID: "dis_1", Handle: "manual", Application: discount.Manual, Type: discount.TypeOrder})
	mustSave[Storefront](t, d.Storefronts, &Storefront{
		Base:            Base{ID: "sf_1", Handle: "main"},
		Collections:     []Collection{{Base: Base{Handle: "summer"}}, {Base: Base{Handle: "missing"}}},
		ShippingMethods: []ShippingMethod{{Base: Base{ID: "ship_1"}}},
		Posts:           []Post{{Base: Base{Handle: "about"}}},
		Discounts:       []discount.Discount{{Handle: "manual"}},
	})

	cols, err := d.Storefronts.ListCollections(ctx, "main")
	if err != nil || len(cols) != 1 || cols[0].ID != "col_1" {
		t.Fatalf("collections: %+v %v", cols, err)
	}
	ships, err := d.Storefronts.ListShippingMethods(ctx, "main")
	if err != nil || len(ships) != 1 || ships[0].Price != 5 {
		t.Fatalf("shipping methods: %+v %v", ships, err)
	}
	posts, err := d.Storefronts.ListPosts(ctx, "sf_1")
	if err != nil || len(posts) != 1 || posts[0].Text != "hello" {
		t.Fatalf("posts: %+v %v", posts, err)
	}
	dis, err := d.Storefronts.ListDiscounts(ctx, "sf_1")
	if err != nil || len(dis) != 1 || dis[0].ID != "dis_1" {
		t.Fatalf("discounts: %+v %v", dis, err)
	}
	prods, err := d.Storefronts.ListProducts(ctx, "sf_1")
	if err != nil || len(prods) != 0 {
		t.Fatalf("products: %+v %v", prods, err)
	}
	missing, err := d.Storefronts.ListPosts(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing storefront: %+v %v", missing, err)
	}

	// removing a shipping method unlinks it from the storefront
	if !d.ShippingMethods.Remove(ctx, "express") {
		t.Fatal("remove shipping method failed")
	}
	if ships, _ := d.Storefronts.ListShippingMethods(ctx, "main"); len(ships) != 0 {
		t.Fatalf("shipping method still linked: %+v", ships)
	}
	sf, _ := d.Storefronts.Get(ctx, "main", repository.Options{})
	if sf == nil {
		t.Fatal("storefront lost")
	}
}

func TestStorefronts_DefaultAutoGenerated(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_on", Active: true}})
	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_off"}})
	mustSave[ShippingMethod](t, d.ShippingMethods, &ShippingMethod{Base: Base{ID: "ship_on", Active: true}})
	mustSave[Post](t, d.Posts, &Post{Base: Base{ID: "post_1"}})
	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{
		ID: "dis_auto", Active: true, Application: discount.Automatic, Type: discount.TypeRegular,
		Filters: []discount.Filter{{Op: discount.OpAll}},
	})
	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{
		ID: "dis_manual", Active: true, Application: discount.Manual, Type: discount.TypeOrder,
	})

	sf, err := d.Storefronts.DefaultAutoGenerated(ctx)
	if err != nil {
		t.Fatalf("default storefront: %v", err)
	}
	if sf.Handle != DefaultStorefrontHandle || sf.ID != "" {
		t.Errorf("unexpected identity: %q %q", sf.ID, sf.Handle)
	}
	if len(sf.Collections) != 1 || sf.Collections[0].ID != "col_on" {
		t.Errorf("collections: %+v", sf.Collections)
	}
	if len(sf.ShippingMethods) != 1 {
		t.Errorf("shipping methods: %+v", sf.ShippingMethods)
	}
	if len(sf.Discounts) != 1 || sf.Discounts[0].ID != "dis_auto" {
		t.Errorf("discounts: %+v", sf.Discounts)
	}
	if len(sf.Posts) != 1 {
		t.Errorf("posts: %+v", sf.Posts)
	}
	if n, _ := d.Storefronts.Count(ctx, queryAll()); n != 0 {
		t.Errorf("default storefront must not be stored, found %d", n)
	}
}

func TestStorefronts_EmbeddedProductHasNoStaleCollections(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_1", Handle: "summer", Title: "Summer"}})
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_1", Title: "Shoe"}, Collections: []Collection{{Base: Base{ID: "col_1"}}}})
	mustSave[Storefront](t, d.Storefronts, &Storefront{Base: Base{ID: "sf_1", Handle: "main"}, Products: []Product{{Base: Base{ID: "pr_1"}}}})

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_1", Handle: "summer", Title: "Winter"}})

	sf, err := d.Storefronts.Get(ctx, "main", repository.Options{Expand: []string{"*"}})
	if err != nil || sf == nil || len(sf.Products) != 1 {
		t.Fatalf("get storefront: %+v %v", sf, err)
	}
	for _, c := range sf.Products[0].Collections {
		if c.Title != "Winter" {
			t.Fatalf("embedded product carries stale collection %+v", c)
		}
	}

	p, err := d.Products.Get(ctx, "pr_1", repository.Options{Expand: []string{RelCollections}})
	if err != nil || p == nil || len(p.Collections) != 1 || p.Collections[0].Title != "Winter" {
		t.Fatalf("product collections: %+v %v", p, err)
	}
}
