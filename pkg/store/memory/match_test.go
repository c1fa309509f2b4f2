package memory

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestMatch(t *testing.T) {
	doc := bson.M{
		"_id":    "pr_1",
		"handle": "shoe",
		"price":  10,
		"tags":   bson.A{"red", "sale"},
		"_relations": bson.M{
			"collections": bson.M{"ids": bson.A{"col_1", "col_2"}},
			"search":      bson.A{"col:summer", "tag:red"},
		},
	}
	tests := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{name: "empty filter", filter: bson.M{}, want: true},
		{name: "implicit equality", filter: bson.M{"handle": "shoe"}, want: true},
		{name: "array contains", filter: bson.M{"tags": "red"}, want: true},
		{name: "whole array equality", filter: bson.M{"tags": bson.A{"red", "sale"}}, want: true},
		{name: "nested ids contain", filter: bson.M{"_relations.collections.ids": "col_2"}, want: true},
		{name: "int vs float", filter: bson.M{"price": 10.0}, want: true},
		{name: "gte lt", filter: bson.M{"price": bson.M{"$gte": 0, "$lt": 15}}, want: true},
		{name: "lt excludes bound", filter: bson.M{"price": bson.M{"$lt": 10}}, want: false},
		{name: "range on string fails across types", filter: bson.M{"handle": bson.M{"$gt": 1}}, want: false},
		{name: "in on array field", filter: bson.M{"tags": bson.M{"$in": bson.A{"blue", "sale"}}}, want: true},
		{name: "nin on array field", filter: bson.M{"tags": bson.M{"$nin": bson.A{"sale"}}}, want: false},
		{name: "nin on missing field", filter: bson.M{"brand": bson.M{"$nin": bson.A{"x"}}}, want: true},
		{name: "in on missing field", filter: bson.M{"brand": bson.M{"$in": bson.A{"x"}}}, want: false},
		{name: "ne on missing field", filter: bson.M{"brand": bson.M{"$ne": "x"}}, want: true},
		{name: "exists", filter: bson.M{"brand": bson.M{"$exists": false}}, want: true},
		{name: "all", filter: bson.M{"_relations.search": bson.M{"$all": bson.A{"col:summer", "tag:red"}}}, want: true},
		{name: "or", filter: bson.M{"$or": bson.A{bson.M{"handle": "x"}, bson.M{"_id": "pr_1"}}}, want: true},
		{name: "and", filter: bson.M{"$and": bson.A{bson.M{"handle": "shoe"}, bson.M{"price": bson.M{"$gt": 20}}}}, want: false},
		{name: "nor", filter: bson.M{"$nor": bson.A{bson.M{"handle": "shoe"}}}, want: false},
		{name: "not", filter: bson.M{"price": bson.M{"$not": bson.M{"$gt": 20}}}, want: true},
		{name: "null matches missing", filter: bson.M{"brand": nil}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.filter)
			if err != nil {
				t.Fatalf("Match error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Match(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMatch_UnsupportedOperator(t *testing.T) {
	if _, err := Match(bson.M{"a": 1}, bson.M{"a": bson.M{"$regex": "x"}}); err == nil {
		t.Fatal("expected error for unsupported operator")
	}
	if _, err := Match(bson.M{"a": 1}, bson.M{"$where": "x"}); err == nil {
		t.Fatal("expected error for unsupported top-level operator")
	}
}

func TestApplyUpdate(t *testing.T) {
	doc := normalizeMap(bson.M{
		"_id": "sf_1",
		"_relations": bson.M{
			"products": bson.M{
				"ids":     bson.A{"pr_1", "pr_2"},
				"entries": bson.M{"pr_1": bson.M{"price": 10}, "pr_2": bson.M{"price": 5}},
			},
			"search": bson.A{"product:pr_1", "product:shoe", "other"},
		},
	})
	err := applyUpdate(doc, normalizeMap(bson.M{
		"$pull":  bson.M{"_relations.products.ids": "pr_1", "_relations.search": bson.M{"$in": bson.A{"product:pr_1", "product:shoe"}}},
		"$unset": bson.M{"_relations.products.entries.pr_1": ""},
		"$set":   bson.M{"_relations.products.entries.pr_2.price": 7},
	}), false)
	if err != nil {
		t.Fatalf("applyUpdate: %v", err)
	}
	rel := doc["_relations"].(bson.M)
	products := rel["products"].(bson.M)
	if !valuesEqual(products["ids"], bson.A{"pr_2"}) {
		t.Fatalf("unexpected ids: %v", products["ids"])
	}
	entries := products["entries"].(bson.M)
	if _, ok := entries["pr_1"]; ok {
		t.Fatal("entry pr_1 should be unset")
	}
	if !valuesEqual(entries["pr_2"].(bson.M)["price"], 7) {
		t.Fatalf("unexpected pr_2 entry: %v", entries["pr_2"])
	}
	if !valuesEqual(rel["search"], bson.A{"other"}) {
		t.Fatalf("unexpected search: %v", rel["search"])
	}
}

func TestApplyUpdate_AddToSetEachAndSetOnInsert(t *testing.T) {
	doc := bson.M{}
	upd := normalizeMap(bson.M{
		"$addToSet":    bson.M{"tokens": bson.M{"$each": bson.A{"a", "b", "a"}}},
		"$setOnInsert": bson.M{"created_at": "now"},
	})
	if err := applyUpdate(doc, upd, false); err != nil {
		t.Fatalf("applyUpdate: %v", err)
	}
	if _, ok := doc["created_at"]; ok {
		t.Fatal("$setOnInsert must not apply on update")
	}
	if !valuesEqual(doc["tokens"], bson.A{"a", "b"}) {
		t.Fatalf("unexpected tokens: %v", doc["tokens"])
	}
	if err := applyUpdate(doc, upd, true); err != nil {
		t.Fatalf("applyUpdate: %v", err)
	}
	if doc["created_at"] != "now" {
		t.Fatal("$setOnInsert must apply on insert")
	}
}

func TestApplyUpdate_RejectsReplacementDocument(t *testing.T) {
	if err := applyUpdate(bson.M{}, bson.M{"title": "x"}, false); err == nil {
		t.Fatal("expected error for non-operator update")
	}
}

func TestSortCompare_TypeBrackets(t *testing.T) {
	if sortCompare(nil, int64(1)) >= 0 {
		t.Fatal("null sorts before numbers")
	}
	if sortCompare(int64(5), "a") >= 0 {
		t.Fatal("numbers sort before strings")
	}
	if sortCompare("a", "b") >= 0 || sortCompare(2.5, int64(2)) <= 0 {
		t.Fatal("same-bracket ordering broken")
	}
}
