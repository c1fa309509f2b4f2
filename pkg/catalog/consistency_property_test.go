package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

const opKinds = 6

func imageURL(i int) string { return fmt.Sprintf("https://cdn.x/p/img%d.png", i) }

// applyOp decodes n into one catalog write over a small id space so that
// writes frequently touch the same documents.
func applyOp(ctx context.Context, d *Driver, n int) {
	target := (n / opKinds) % 3
	mask := (n / (opKinds * 3)) % 8
	var refs []Base
	var media []string
	for i := 0; i < 3; i++ {
		if mask&(1<<i) != 0 {
			refs = append(refs, Base{ID: fmt.Sprintf("ref_%d", i)})
			media = append(media, imageURL(i))
		}
	}
	switch n % opKinds {
	case 0:
		_ = d.Collections.Save(ctx, &Collection{Base: Base{
			ID: fmt.Sprintf("col_%d", target), Handle: fmt.Sprintf("c%d-%d", target, n%2), Title: fmt.Sprintf("T%d", n),
		}})
	case 1:
		cols := make([]Collection, len(refs))
		for i, r := range refs {
			cols[i] = Collection{Base: Base{ID: "col_" + r.ID[4:]}}
		}
		_ = d.Products.Save(ctx, &Product{
			Base:        Base{ID: fmt.Sprintf("pr_%d", target), Title: fmt.Sprintf("P%d", n), Media: media},
			Price:       float64(n % 50),
			Collections: cols,
		})
	case 2:
		_ = d.Collections.Delete(ctx, fmt.Sprintf("col_%d", target))
	case 3:
		_ = d.Products.Delete(ctx, fmt.Sprintf("pr_%d", target))
	case 4:
		prods := make([]Product, len(refs))
		for i, r := range refs {
			prods[i] = Product{Base: Base{ID: "pr_" + r.ID[4:]}}
		}
		_ = d.Storefronts.Save(ctx, &Storefront{
			Base:     Base{ID: fmt.Sprintf("sf_%d", target), Media: []string{imageURL(target)}},
			Products: prods,
		})
	case 5:
		_ = d.Images.Delete(ctx, fmt.Sprintf("img%d-png", target))
	}
}

func loadAll(ctx context.Context, d *Driver, coll string) map[string]bson.M {
	docs, _ := d.Store().Collection(coll).Find(ctx, bson.M{}, document.FindOptions{})
	out := map[string]bson.M{}
	for _, doc := range docs {
		out[fmt.Sprint(doc[document.IDField])] = doc
	}
	return out
}

// consistent checks that every holder's ids and entries agree with each
// other and with the current state of the referenced documents, and that
// the holder tokens name exactly the referenced documents.
func consistent(holders, targets map[string]bson.M, rel, prefix string, fields ...string) error {
	for hid, h := range holders {
		r, _ := relations.Get(h, rel)
		if len(r.IDs) != len(r.Entries) {
			return fmt.Errorf("%s.%s: %d ids but %d entries", hid, rel, len(r.IDs), len(r.Entries))
		}
		want := map[string]bool{}
		for _, id := range r.IDs {
			t, ok := targets[id]
			if !ok {
				return fmt.Errorf("%s.%s references missing %s", hid, rel, id)
			}
			e, ok := r.Entries[id]
			if !ok {
				return fmt.Errorf("%s.%s lists %s without an entry", hid, rel, id)
			}
			for _, f := range fields {
				if fmt.Sprint(e[f]) != fmt.Sprint(t[f]) {
					return fmt.Errorf("%s.%s entry %s has stale %s: %v != %v", hid, rel, id, f, e[f], t[f])
				}
			}
			want[prefix+":"+id] = true
			if hd, ok := t["handle"].(string); ok && hd != "" {
				want[prefix+":"+hd] = true
			}
		}
		for _, tok := range relations.SearchTokens(h) {
			if len(tok) > len(prefix)+1 && tok[:len(prefix)+1] == prefix+":" && !want[tok] {
				return fmt.Errorf("%s carries stale token %s", hid, tok)
			}
		}
		for id, e := range r.Entries {
			for name, nested := range relations.All(e) {
				if nested.Kind == relations.KindReferenceSet {
					return fmt.Errorf("%s.%s entry %s embeds reference set %s", hid, rel, id, name)
				}
			}
		}
		for tok := range want {
			found := false
			for _, have := range relations.SearchTokens(h) {
				found = found || have == tok
			}
			if !found {
				return fmt.Errorf("%s misses token %s", hid, tok)
			}
		}
	}
	return nil
}

// indexed checks that every media URL still referenced by a document has
// an entry in the images collection.
func indexed(docs, images map[string]bson.M) error {
	known := map[string]bool{}
	for _, img := range images {
		if u, ok := img["url"].(string); ok {
			known[u] = true
		}
	}
	for id, doc := range docs {
		for _, u := range synchronizer.RefList(doc["media"]) {
			if !known[u] {
				return fmt.Errorf("%s references unindexed media %s", id, u)
			}
		}
	}
	return nil
}

func TestProperty_ReferentialConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	properties.Property("embedded copies match their sources after any write sequence, image removals included", prop.ForAll(
		func(ops []int) bool {
			d, _ := newTestDriver(t)
			ctx := context.Background()
			for _, n := range ops {
				applyOp(ctx, d, n)
			}
			products := loadAll(ctx, d, CollProducts)
			if err := consistent(products, loadAll(ctx, d, CollCollections), RelCollections, collectionPrefix, "title", "handle"); err != nil {
				t.Log(err)
				return false
			}
			storefronts := loadAll(ctx, d, CollStorefronts)
			if err := consistent(storefronts, products, RelProducts, productPrefix, "price", "title", "media"); err != nil {
				t.Log(err)
				return false
			}
			images := loadAll(ctx, d, CollImages)
			for _, docs := range []map[string]bson.M{products, storefronts} {
				if err := indexed(docs, images); err != nil {
					t.Log(err)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.IntRange(0, opKinds*3*8-1)),
	))

	properties.TestingRun(t)
}
