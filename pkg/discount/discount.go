// Package discount holds the discount model and the eligibility evaluator
// that decides which products an automatic discount applies to, both as a
// native store filter and in-process against a single product document.
package discount

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Application is how a discount is applied at checkout.
type Application string

const (
	Automatic Application = "automatic"
	Manual    Application = "manual"
)

// Type is the discount kind. Order-level discounts apply to the whole order
// and never relate to individual products.
type Type string

const (
	TypeRegular  Type = "regular"
	TypeBulk     Type = "bulk"
	TypeBuyXGetY Type = "buy_x_get_y"
	TypeBundle   Type = "bundle"
	TypeOrder    Type = "order"
)

// FilterOp selects which products a filter clause matches.
type FilterOp string

const (
	OpAll              FilterOp = "p-all"
	OpInProducts       FilterOp = "p-in-products"
	OpNotInProducts    FilterOp = "p-not-in-products"
	OpInTags           FilterOp = "p-in-tags"
	OpNotInTags        FilterOp = "p-not-in-tags"
	OpInCollections    FilterOp = "p-in-collections"
	OpNotInCollections FilterOp = "p-not-in-collections"
	OpInPriceRange     FilterOp = "p-in-price-range"
)

// Filter is one clause. Values holds product handles, tags or collection ids
// depending on Op; From and To bound a price range (from inclusive, to
// exclusive).
type Filter struct {
	Op     FilterOp `bson:"op" json:"op"`
	Values []string `bson:"values,omitempty" json:"values,omitempty"`
	From   *float64 `bson:"from,omitempty" json:"from,omitempty"`
	To     *float64 `bson:"to,omitempty" json:"to,omitempty"`
}

// Discount is a stored discount.
type Discount struct {
	ID          string      `bson:"id" json:"id"`
	Handle      string      `bson:"handle" json:"handle"`
	Title       string      `bson:"title,omitempty" json:"title,omitempty"`
	Description string      `bson:"description,omitempty" json:"description,omitempty"`
	Active      bool        `bson:"active" json:"active"`
	Priority    int         `bson:"priority" json:"priority"`
	Application Application `bson:"application" json:"application"`
	Type        Type        `bson:"type" json:"type"`
	Filters     []Filter    `bson:"filters,omitempty" json:"filters,omitempty"`
	Fixed       float64     `bson:"fixed,omitempty" json:"fixed,omitempty"`
	Percent     float64     `bson:"percent,omitempty" json:"percent,omitempty"`
	Media       []string    `bson:"media,omitempty" json:"media,omitempty"`
	Tags        []string    `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt   string      `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt   string      `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Product fields matched by filters.
const (
	HandleField        = "handle"
	TagsField          = "tags"
	PriceField         = "price"
	CollectionIDsField = "_relations.collections.ids"
)

// Applicable reports whether d relates to products automatically.
func Applicable(d Discount) bool {
	return d.Type != TypeOrder && d.Application == Automatic && d.Active && len(d.Filters) > 0
}

// SearchTokens are the tokens folded into an eligible product's search set.
func SearchTokens(d Discount) []string {
	out := []string{"discount:" + d.ID}
	if d.Handle != "" {
		out = append(out, "discount:"+d.Handle)
	}
	return out
}

// ToNativeFilter returns the product filter for d, or nil when d does not
// relate to products automatically. An empty filter matches every product.
func ToNativeFilter(d Discount) bson.M {
	if !Applicable(d) {
		return nil
	}
	terms := bson.A{}
	for _, f := range d.Filters {
		if t := nativeTerm(f); t != nil {
			terms = append(terms, t)
		}
	}
	switch len(terms) {
	case 0:
		return bson.M{}
	case 1:
		return terms[0].(bson.M)
	}
	return bson.M{"$and": terms}
}

func stringArray(values []string) bson.A {
	out := make(bson.A, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func nativeTerm(f Filter) bson.M {
	switch f.Op {
	case OpInProducts:
		return bson.M{HandleField: bson.M{"$in": stringArray(f.Values)}}
	case OpNotInProducts:
		return bson.M{HandleField: bson.M{"$nin": stringArray(f.Values)}}
	case OpInTags:
		return bson.M{TagsField: bson.M{"$in": stringArray(f.Values)}}
	case OpNotInTags:
		return bson.M{TagsField: bson.M{"$nin": stringArray(f.Values)}}
	case OpInCollections:
		return bson.M{CollectionIDsField: bson.M{"$in": stringArray(f.Values)}}
	case OpNotInCollections:
		return bson.M{CollectionIDsField: bson.M{"$nin": stringArray(f.Values)}}
	case OpInPriceRange:
		bounds := bson.M{}
		if f.From != nil {
			bounds["$gte"] = *f.From
		}
		if f.To != nil {
			bounds["$lt"] = *f.To
		}
		if len(bounds) == 0 {
			return nil
		}
		return bson.M{PriceField: bounds}
	}
	return nil
}
