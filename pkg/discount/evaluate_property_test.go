package discount

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/nimburion/docsync/pkg/store/memory"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	handles     = []string{"shoe", "hat", "sock"}
	tags        = []string{"red", "blue", "sale"}
	collections = []string{"col_1", "col_2", "col_3"}
	ops         = []FilterOp{OpAll, OpInProducts, OpNotInProducts, OpInTags, OpNotInTags, OpInCollections, OpNotInCollections, OpInPriceRange}
)

func pickSubset(universe []string, mask int) []string {
	var out []string
	for i, v := range universe {
		if mask&(1<<i) != 0 {
			out = append(out, v)
		}
	}
	return out
}

// filterFrom derives one clause from a generated code.
func filterFrom(code int) Filter {
	f := Filter{Op: ops[code%len(ops)]}
	mask := (code / len(ops)) % 8
	switch f.Op {
	case OpInProducts, OpNotInProducts:
		f.Values = pickSubset(handles, mask)
	case OpInTags, OpNotInTags:
		f.Values = pickSubset(tags, mask)
	case OpInCollections, OpNotInCollections:
		f.Values = pickSubset(collections, mask)
	case OpInPriceRange:
		if mask&1 != 0 {
			f.From = ptr(float64(code % 20))
		}
		if mask&2 != 0 {
			f.To = ptr(float64(code%20 + 10))
		}
	}
	return f
}

func productFrom(handle string, tagMask, colMask, price int) bson.M {
	p := bson.M{"_id": "pr_1", "id": "pr_1", "handle": handle}
	if t := pickSubset(tags, tagMask); t != nil {
		arr := bson.A{}
		for _, v := range t {
			arr = append(arr, v)
		}
		p["tags"] = arr
	}
	if price >= 0 {
		p["price"] = int64(price)
	}
	if cols := pickSubset(collections, colMask); cols != nil {
		ids := bson.A{}
		entries := bson.M{}
		for _, c := range cols {
			ids = append(ids, c)
			entries[c] = bson.M{"id": c}
		}
		p["_relations"] = bson.M{"collections": bson.M{"ids": ids, "entries": entries}}
	}
	return p
}

// The native filter evaluated by the store and the in-process evaluator
// classify every product identically.
func TestProperty_EligibilityAgreement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("ToNativeFilter agrees with TestAgainstProduct", prop.ForAll(
		func(codes []int, handle string, tagMask, colMask, price int) bool {
			var filters []Filter
			for _, c := range codes {
				filters = append(filters, filterFrom(c))
			}
			d := auto(filters...)
			product := productFrom(handle, tagMask, colMask, price)

			native := ToNativeFilter(d)
			matched, err := memory.Match(product, native)
			if err != nil {
				t.Logf("Match: %v", err)
				return false
			}
			inProcess := Eligible(d, product)
			if matched != inProcess {
				t.Logf("filters %+v product %v: native %v in-process %v", filters, product, matched, inProcess)
			}
			return matched == inProcess
		},
		gen.SliceOfN(3, gen.IntRange(0, 10000)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.OneConstOf("shoe", "hat", "sock", "boot"),
		gen.IntRange(0, 7),
		gen.IntRange(0, 7),
		gen.IntRange(-1, 40),
	))

	properties.TestingRun(t)
}
