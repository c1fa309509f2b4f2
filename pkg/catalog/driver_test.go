package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/store/memory"
	"go.mongodb.org/mongo-driver/bson"
)

func newTestDriver(t *testing.T) (*Driver, *memory.Store) {
	t.Helper()
	store := memory.New()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := New(store, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	return d, store
}

func rawDoc(t *testing.T, d *Driver, coll, id string) bson.M {
	t.Helper()
	doc, err := d.Synchronizer().Find(context.Background(), coll, id)
	if err != nil {
		t.Fatalf("find %s/%s: %v", coll, id, err)
	}
	return doc
}

func hasToken(doc bson.M, token string) bool {
	for _, tok := range relations.SearchTokens(doc) {
		if tok == token {
			return true
		}
	}
	return false
}

func queryAll() query.Query { return query.Query{Limit: 100} }

func price(from, to float64) []discount.Filter {
	return []discount.Filter{{Op: discount.OpInPriceRange, From: &from, To: &to}}
}

func mustSave[T any](t *testing.T, r interface {
	Save(context.Context, *T, ...string) error
}, v *T) {
	t.Helper()
	if err := r.Save(context.Background(), v); err != nil {
		t.Fatalf("save %T: %v", v, err)
	}
}

func TestStorefront_EmbeddedProductFollowsUpdates(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	p1 := &Product{Base: Base{ID: "pr_1", Handle: "shoe", Title: "Shoe", Active: true}, Price: 10}
	mustSave[Product](t, d.Products, p1)
	mustSave[Storefront](t, d.Storefronts, &Storefront{
		Base:     Base{ID: "sf_1", Handle: "main"},
		Products: []Product{{Base: Base{ID: "pr_1"}}},
	})

	sf, err := d.Storefronts.Get(ctx, "main", repository.Options{Expand: []string{RelProducts}})
	if err != nil || sf == nil {
		t.Fatalf("get storefront: %v %v", sf, err)
	}
	if len(sf.Products) != 1 || sf.Products[0].Price != 10 {
		t.Fatalf("unexpected storefront products: %+v", sf.Products)
	}

	p1.Price = 20
	mustSave[Product](t, d.Products, p1)

	sf, err = d.Storefronts.Get(ctx, "main", repository.Options{Expand: []string{RelProducts}})
	if err != nil {
		t.Fatalf("get storefront: %v", err)
	}
	if len(sf.Products) != 1 || sf.Products[0].Price != 20 {
		t.Fatalf("embedded product is stale: %+v", sf.Products)
	}
	if !hasToken(rawDoc(t, d, CollStorefronts, "sf_1"), "product:shoe") {
		t.Error("storefront must carry the product handle token")
	}
}

func TestDiscount_EligibilityFollowsFilterChanges(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	dis := &discount.Discount{
		ID: "dis_1", Handle: "cheap", Active: true,
		Application: discount.Automatic, Type: discount.TypeRegular,
		Filters: price(0, 15), Percent: 10,
	}
	mustSave[discount.Discount](t, d.Discounts, dis)
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_1", Handle: "p"}, Price: 10})

	got, err := d.Products.ListDiscounts(ctx, "pr_1")
	if err != nil {
		t.Fatalf("list discounts: %v", err)
	}
	if len(got) != 1 || got[0].ID != "dis_1" {
		t.Fatalf("expected the discount to apply, got %+v", got)
	}
	if !hasToken(rawDoc(t, d, CollProducts, "pr_1"), "discount:cheap") {
		t.Error("missing discount token")
	}

	dis.Filters = price(20, 30)
	mustSave[discount.Discount](t, d.Discounts, dis)

	got, err = d.Products.ListDiscounts(ctx, "pr_1")
	if err != nil {
		t.Fatalf("list discounts: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("discount must no longer apply, got %+v", got)
	}
	p := rawDoc(t, d, CollProducts, "pr_1")
	if hasToken(p, "discount:cheap") || hasToken(p, "discount:dis_1") {
		t.Errorf("stale discount tokens: %v", relations.SearchTokens(p))
	}

	// reprocessing the product agrees with the reconciled state
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_1", Handle: "p"}, Price: 10})
	if got, _ := d.Products.ListDiscounts(ctx, "pr_1"); len(got) != 0 {
		t.Fatalf("re-upsert relinked an ineligible discount: %+v", got)
	}
}

func TestDiscount_SaveLinksExistingProducts(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_1", Handle: "summer"}})
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_1", Handle: "a"}, Collections: []Collection{{Base: Base{ID: "col_1"}}}})
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_2", Handle: "b"}})
	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{
		ID: "dis_1", Handle: "summer-sale", Active: true,
		Application: discount.Automatic, Type: discount.TypeRegular,
		Filters: []discount.Filter{{Op: discount.OpInCollections, Values: []string{"col_1"}}},
	})

	list, err := d.Discounts.ListProducts(ctx, "summer-sale", queryAll())
	if err != nil {
		t.Fatalf("list discount products: %v", err)
	}
	if len(list) != 1 || list[0].ID != "pr_1" {
		t.Fatalf("unexpected discount products: %+v", list)
	}
	n, err := d.Discounts.CountProducts(ctx, "dis_1", queryAll())
	if err != nil || n != 1 {
		t.Fatalf("count discount products: %d %v", n, err)
	}

	// deactivating unlinks it everywhere
	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{
		ID: "dis_1", Handle: "summer-sale", Active: false,
		Application: discount.Automatic, Type: discount.TypeRegular,
		Filters: []discount.Filter{{Op: discount.OpInCollections, Values: []string{"col_1"}}},
	})
	if n, _ := d.Discounts.CountProducts(ctx, "dis_1", queryAll()); n != 0 {
		t.Fatalf("inactive discount still linked to %d products", n)
	}
}

func TestDiscount_RemoveUnlinksProducts(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[discount.Discount](t, d.Discounts, &discount.Discount{
		ID: "dis_1", Handle: "all", Active: true,
		Application: discount.Automatic, Type: discount.TypeRegular,
		Filters: []discount.Filter{{Op: discount.OpAll}},
	})
	mustSave[Product](t, d.Products, &Product{Base: Base{ID: "pr_1"}})

	if !d.Discounts.Remove(ctx, "all") {
		t.Fatal("remove failed")
	}
	p := rawDoc(t, d, CollProducts, "pr_1")
	if r, _ := relations.Get(p, RelDiscounts); len(r.IDs) != 0 || len(r.Entries) != 0 {
		t.Fatalf("discount relation not cleared: %+v", r)
	}
	if hasToken(p, "discount:all") || hasToken(p, "discount:dis_1") {
		t.Errorf("stale tokens: %v", relations.SearchTokens(p))
	}
}

func TestCollection_RemoveUnlinksProducts(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_1", Handle: "summer"}})
	mustSave[Collection](t, d.Collections, &Collection{Base: Base{ID: "col_2", Handle: "winter"}})
	for _, id := range []string{"pr_1", "pr_2"} {
		mustSave[Product](t, d.Products, &Product{
			Base:        Base{ID: id},
			Collections: []Collection{{Base: Base{Handle: "summer"}}, {Base: Base{Handle: "winter"}}},
		})
	}
	if n, err := d.Collections.CountProducts(ctx, "summer", queryAll()); err != nil || n != 2 {
		t.Fatalf("count collection products: %d %v", n, err)
	}

	if !d.Collections.Remove(ctx, "summer") {
		t.Fatal("remove failed")
	}
	for _, id := range []string{"pr_1", "pr_2"} {
		p := rawDoc(t, d, CollProducts, id)
		r, _ := relations.Get(p, RelCollections)
		if r.Has("col_1") {
			t.Errorf("%s still lists the removed collection", id)
		}
		if _, ok := r.Entries["col_1"]; ok {
			t.Errorf("%s still embeds the removed collection", id)
		}
		if !r.Has("col_2") {
			t.Errorf("%s lost an unrelated collection", id)
		}
		for _, tok := range []string{"col:summer", "col:col_1"} {
			if hasToken(p, tok) {
				t.Errorf("%s still carries %s", id, tok)
			}
		}
		if !hasToken(p, "col:winter") {
			t.Errorf("%s lost col:winter", id)
		}
	}
	list, err := d.Collections.ListProducts(ctx, "summer", queryAll())
	if err != nil || list != nil {
		t.Fatalf("listing a removed collection: %v %v", list, err)
	}
}

func TestIndexSpecs_IncludeMaintainedRelations(t *testing.T) {
	d, _ := newTestDriver(t)
	specs := d.IndexSpecs()
	if len(specs) != len(d.CollectionNames()) {
		t.Fatalf("expected one spec per collection, got %d", len(specs))
	}
	want := map[string][]string{
		CollProducts:    {RelCollections, RelDiscounts, RelVariants},
		CollStorefronts: {RelCollections, RelDiscounts, RelPosts, RelProducts, RelShippingMethods},
	}
	for _, s := range specs {
		exp, ok := want[s.Collection]
		if !ok {
			continue
		}
		if len(s.Relations) != len(exp) {
			t.Fatalf("%s relations: got %v want %v", s.Collection, s.Relations, exp)
		}
		for i := range exp {
			if s.Relations[i] != exp[i] {
				t.Errorf("%s relations: got %v want %v", s.Collection, s.Relations, exp)
			}
		}
	}
}
