package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/docsync/pkg/discount"
	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	collectionPrefix = "col"
	discountPrefix   = "discount"
	productPrefix    = "product"
)

// Products stores products and their variants. A product's collections are
// named on write; its discounts follow from the active automatic discounts
// and its variants from the products naming it as parent.
type Products struct {
	*repository.Crud[Product]
	d *Driver
}

func newProducts(d *Driver) *Products {
	p := &Products{d: d}
	e := synchronizer.Entity{
		Collection: CollProducts,
		Explicit: []synchronizer.Explicit{
			{Field: RelCollections, Target: CollCollections, TokenPrefix: collectionPrefix},
		},
		Derived:      []string{RelDiscounts, RelVariants},
		Media:        true,
		BeforeSave:   p.beforeSave,
		AfterSave:    p.linkParent,
		BeforeRemove: p.removeVariants,
	}
	d.sync.RegisterEntity(e)
	p.Crud = repository.NewCrud[Product](d.sync, e, ids.PrefixProduct, d.limits)
	return p
}

func (p *Products) beforeSave(ctx context.Context, dr *synchronizer.Draft) error {
	if err := p.resolveParent(ctx, dr); err != nil {
		return err
	}
	return p.applyDiscounts(ctx, dr)
}

// resolveParent pins a variant to its parent by id and handle.
func (p *Products) resolveParent(ctx context.Context, dr *synchronizer.Draft) error {
	ref, _ := dr.Doc["parent_id"].(string)
	if ref == "" {
		ref, _ = dr.Doc["parent_handle"].(string)
	}
	if ref == "" {
		return nil
	}
	parent, err := p.d.sync.Find(ctx, CollProducts, ref)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("%w: parent product %s not found", synchronizer.ErrInvalid, ref)
	}
	if parent[document.IDField] == dr.ID {
		return fmt.Errorf("%w: product %s cannot be its own parent", synchronizer.ErrInvalid, dr.ID)
	}
	dr.Doc["parent_id"] = parent["id"]
	if h, ok := parent["handle"].(string); ok && h != "" {
		dr.Doc["parent_handle"] = h
	}
	return nil
}

// applyDiscounts recomputes the discounts relation from the active
// automatic discounts the product is eligible for.
func (p *Products) applyDiscounts(ctx context.Context, dr *synchronizer.Draft) error {
	docs, err := p.d.sync.Store().Collection(CollDiscounts).Find(ctx, bson.M{
		"active":      true,
		"application": string(discount.Automatic),
	}, document.FindOptions{Sort: bson.D{{Key: "priority", Value: 1}, {Key: "id", Value: 1}}})
	if err != nil {
		return fmt.Errorf("load automatic discounts: %w", err)
	}
	rel := relations.NewReferenceSet()
	for _, doc := range docs {
		model, err := repository.Decode[discount.Discount](doc)
		if err != nil {
			return err
		}
		if !discount.Eligible(*model, dr.Doc) {
			continue
		}
		rel.Put(model.ID, relations.Snapshot(doc))
		dr.AddTokens(discount.SearchTokens(*model)...)
	}
	relations.Set(dr.Doc, RelDiscounts, rel)
	return nil
}

// linkParent moves a variant into its parent's variants relation.
func (p *Products) linkParent(ctx context.Context, dr *synchronizer.Draft) error {
	parentID, _ := dr.Doc["parent_id"].(string)
	prevParent, _ := dr.Previous["parent_id"].(string)
	coll := p.d.sync.Store().Collection(CollProducts)
	if prevParent != "" && prevParent != parentID {
		if _, err := coll.UpdateOne(ctx, bson.M{document.IDField: prevParent}, bson.M{
			"$pull":  bson.M{relations.IDsPath(RelVariants): dr.ID},
			"$unset": bson.M{relations.EntryPath(RelVariants, dr.ID): ""},
		}, false); err != nil {
			return fmt.Errorf("unlink variant %s from %s: %w", dr.ID, prevParent, err)
		}
	}
	if parentID == "" {
		return nil
	}
	if _, err := coll.UpdateOne(ctx, bson.M{document.IDField: parentID}, bson.M{
		"$addToSet": bson.M{relations.IDsPath(RelVariants): dr.ID},
		"$set":      bson.M{relations.EntryPath(RelVariants, dr.ID): relations.Snapshot(dr.Doc)},
	}, false); err != nil {
		return fmt.Errorf("link variant %s to %s: %w", dr.ID, parentID, err)
	}
	return nil
}

// removeVariants deletes a parent's variants together with it.
func (p *Products) removeVariants(ctx context.Context, doc bson.M) error {
	vs, ok := relations.Get(doc, RelVariants)
	if !ok {
		return nil
	}
	coll := p.d.sync.Store().Collection(CollProducts)
	for _, id := range vs.IDs {
		v, err := coll.FindOne(ctx, bson.M{document.IDField: id}, nil)
		if err != nil {
			if errors.Is(err, document.ErrNotFound) {
				continue
			}
			return fmt.Errorf("load variant %s: %w", id, err)
		}
		if err := p.d.sync.RemoveInTx(ctx, p.Entity(), v); err != nil {
			return err
		}
	}
	return nil
}

// ListCollections returns the expanded collections of a product.
func (p *Products) ListCollections(ctx context.Context, idOrHandle string) ([]Collection, error) {
	return related[Collection](ctx, p.d, CollProducts, idOrHandle, RelCollections)
}

// ListDiscounts returns the automatic discounts a product is eligible for.
func (p *Products) ListDiscounts(ctx context.Context, idOrHandle string) ([]discount.Discount, error) {
	return related[discount.Discount](ctx, p.d, CollProducts, idOrHandle, RelDiscounts)
}

// ListVariants returns the variants of a parent product.
func (p *Products) ListVariants(ctx context.Context, idOrHandle string) ([]Product, error) {
	return related[Product](ctx, p.d, CollProducts, idOrHandle, RelVariants)
}

// ListUsedTags returns the distinct tags used across products.
func (p *Products) ListUsedTags(ctx context.Context) ([]string, error) {
	docs, err := p.d.sync.Store().Collection(CollProducts).Find(ctx, bson.M{"tags.0": bson.M{"$exists": true}},
		document.FindOptions{Projection: bson.M{"tags": 1}})
	if err != nil {
		return nil, fmt.Errorf("list used tags: %w", err)
	}
	var tags []string
	for _, d := range docs {
		tags = append(tags, synchronizer.RefList(d["tags"])...)
	}
	return relations.Dedup(tags), nil
}

// CountWithTag counts products carrying tag.
func (p *Products) CountWithTag(ctx context.Context, tag string) (int64, error) {
	return p.Count(ctx, query.Query{Filters: []query.Predicate{{Field: "tags", Op: query.OpEq, Value: tag}}})
}
