package discount

import (
	"github.com/nimburion/docsync/pkg/relations"
	"go.mongodb.org/mongo-driver/bson"
)

// TestAgainstProduct evaluates filters against one product document the way
// the native filter selects it.
func TestAgainstProduct(filters []Filter, product bson.M) bool {
	for _, f := range filters {
		if !testFilter(f, product) {
			return false
		}
	}
	return true
}

// Eligible reports whether d applies to product automatically.
func Eligible(d Discount, product bson.M) bool {
	return Applicable(d) && TestAgainstProduct(d.Filters, product)
}

func testFilter(f Filter, product bson.M) bool {
	switch f.Op {
	case OpInProducts:
		return anyIn(scalar(product[HandleField]), f.Values)
	case OpNotInProducts:
		return !anyIn(scalar(product[HandleField]), f.Values)
	case OpInTags:
		return anyIn(list(product[TagsField]), f.Values)
	case OpNotInTags:
		return !anyIn(list(product[TagsField]), f.Values)
	case OpInCollections:
		return anyIn(collectionIDs(product), f.Values)
	case OpNotInCollections:
		return !anyIn(collectionIDs(product), f.Values)
	case OpInPriceRange:
		if f.From == nil && f.To == nil {
			return true
		}
		price, ok := number(product[PriceField])
		if !ok {
			return false
		}
		if f.From != nil && price < *f.From {
			return false
		}
		if f.To != nil && price >= *f.To {
			return false
		}
		return true
	}
	return true
}

func anyIn(have []string, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func scalar(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case bson.A, []any, []string:
		return list(val)
	}
	return nil
}

func list(v any) []string {
	var items []any
	switch arr := v.(type) {
	case []string:
		return arr
	case bson.A:
		items = arr
	case []any:
		items = arr
	case string:
		return []string{arr}
	default:
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func collectionIDs(product bson.M) []string {
	r, ok := relations.Get(product, "collections")
	if !ok || r.Kind != relations.KindReferenceSet {
		return nil
	}
	return r.IDs
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
