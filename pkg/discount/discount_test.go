package discount

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func ptr(f float64) *float64 { return &f }

func auto(filters ...Filter) Discount {
	return Discount{ID: "dis_1", Handle: "ten-off", Active: true, Application: Automatic, Type: TypeRegular, Filters: filters}
}

func TestToNativeFilter_NotApplicable(t *testing.T) {
	tests := []struct {
		name string
		d    Discount
	}{
		{"manual", Discount{Active: true, Application: Manual, Filters: []Filter{{Op: OpAll}}}},
		{"inactive", Discount{Application: Automatic, Filters: []Filter{{Op: OpAll}}}},
		{"order level", Discount{Active: true, Application: Automatic, Type: TypeOrder, Filters: []Filter{{Op: OpAll}}}},
		{"no filters", Discount{Active: true, Application: Automatic}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f := ToNativeFilter(tt.d); f != nil {
				t.Fatalf("expected nil filter, got %v", f)
			}
		})
	}
}

func TestToNativeFilter_Terms(t *testing.T) {
	if f := ToNativeFilter(auto(Filter{Op: OpAll})); f == nil || len(f) != 0 {
		t.Fatalf("p-all should match everything, got %v", f)
	}
	got := ToNativeFilter(auto(
		Filter{Op: OpInTags, Values: []string{"red"}},
		Filter{Op: OpNotInCollections, Values: []string{"col_1"}},
		Filter{Op: OpInPriceRange, From: ptr(0), To: ptr(15)},
	))
	want := bson.M{"$and": bson.A{
		bson.M{TagsField: bson.M{"$in": bson.A{"red"}}},
		bson.M{CollectionIDsField: bson.M{"$nin": bson.A{"col_1"}}},
		bson.M{PriceField: bson.M{"$gte": 0.0, "$lt": 15.0}},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("filter = %v, want %v", got, want)
	}
	got = ToNativeFilter(auto(Filter{Op: OpInPriceRange, To: ptr(5)}))
	if !reflect.DeepEqual(got, bson.M{PriceField: bson.M{"$lt": 5.0}}) {
		t.Fatalf("only the provided bound should appear, got %v", got)
	}
}

func TestTestAgainstProduct(t *testing.T) {
	product := bson.M{
		"handle": "shoe",
		"tags":   bson.A{"red"},
		"price":  int64(10),
		"_relations": bson.M{"collections": bson.M{
			"ids":     bson.A{"col_1"},
			"entries": bson.M{"col_1": bson.M{"id": "col_1"}},
		}},
	}
	tests := []struct {
		name    string
		filters []Filter
		want    bool
	}{
		{"all", []Filter{{Op: OpAll}}, true},
		{"handle allowed", []Filter{{Op: OpInProducts, Values: []string{"shoe"}}}, true},
		{"handle denied", []Filter{{Op: OpNotInProducts, Values: []string{"shoe"}}}, false},
		{"tag allowed", []Filter{{Op: OpInTags, Values: []string{"blue", "red"}}}, true},
		{"tag denied", []Filter{{Op: OpNotInTags, Values: []string{"red"}}}, false},
		{"collection allowed", []Filter{{Op: OpInCollections, Values: []string{"col_1"}}}, true},
		{"collection denied", []Filter{{Op: OpNotInCollections, Values: []string{"col_2"}}}, true},
		{"price in [0,15)", []Filter{{Op: OpInPriceRange, From: ptr(0), To: ptr(15)}}, true},
		{"price in [20,30)", []Filter{{Op: OpInPriceRange, From: ptr(20), To: ptr(30)}}, false},
		{"upper bound exclusive", []Filter{{Op: OpInPriceRange, To: ptr(10)}}, false},
		{"conjunction", []Filter{{Op: OpInTags, Values: []string{"red"}}, {Op: OpInPriceRange, From: ptr(11)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TestAgainstProduct(tt.filters, product); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchTokens(t *testing.T) {
	got := SearchTokens(Discount{ID: "dis_1", Handle: "ten-off"})
	if !reflect.DeepEqual(got, []string{"discount:dis_1", "discount:ten-off"}) {
		t.Fatalf("tokens = %v", got)
	}
}
