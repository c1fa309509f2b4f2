package media

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/store/memory"
	"go.mongodb.org/mongo-driver/bson"
)

func TestHandleFromURL(t *testing.T) {
	tests := map[string]string{
		"https://cdn.example.com/a/b/Red_Shoe.PNG": "red-shoe-png",
		"https://cdn.example.com/a/b/cat.png?v=2":  "cat-png",
		"storage://images/summer sale banner.jpg":  "summer-sale-banner-jpg",
		"https://cdn.example.com/folder/":          "folder",
		"":                                         "",
	}
	for in, want := range tests {
		if got := HandleFromURL(in); got != want {
			t.Errorf("HandleFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		tm, _ := time.Parse(time.RFC3339, ts)
		return tm
	}
}

func TestReport_UpsertSemantics(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r := NewReporter(s, WithClock(fixedClock("2024-01-01T00:00:00Z")))
	if err := r.Report(ctx, bson.M{Field: bson.A{"https://cdn/x/cat.png", "https://cdn/x/dog.png"}}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	first, err := s.Collection(Collection).FindOne(ctx, bson.M{"handle": "cat-png"}, nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}

	r = NewReporter(s, WithClock(fixedClock("2024-02-01T00:00:00Z")))
	if err := r.Report(ctx, bson.M{Field: []string{"https://other/y/cat.png"}}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	second, _ := s.Collection(Collection).FindOne(ctx, bson.M{"handle": "cat-png"}, nil)

	if second["id"] != first["id"] || second["_id"] != first["_id"] {
		t.Fatal("existing image entry must keep its id")
	}
	if second["created_at"] != first["created_at"] {
		t.Fatal("created_at is set on insert only")
	}
	if second["updated_at"] == first["updated_at"] || second["url"] != "https://other/y/cat.png" {
		t.Fatalf("update fields not applied: %v", second)
	}
	if n, _ := s.Collection(Collection).Count(ctx, bson.M{}); n != 2 {
		t.Fatalf("expected 2 image entries, got %d", n)
	}
	found := false
	for _, tok := range relations.SearchTokens(second) {
		if tok == "cat" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected name token in %v", relations.SearchTokens(second))
	}
}

func TestOnImageRemoved(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	url := "https://cdn/x/cat.png"
	for _, c := range []struct{ coll, id string }{{"products", "pr_1"}, {"posts", "post_1"}, {"products", "pr_2"}} {
		media := bson.A{"https://cdn/x/keep.png"}
		if c.id != "pr_2" {
			media = append(media, url)
		}
		_, _ = s.Collection(c.coll).ReplaceOne(ctx, bson.M{"_id": c.id}, bson.M{"_id": c.id, "id": c.id, Field: media}, true)
	}
	r := NewReporter(s)
	if err := r.Report(ctx, bson.M{Field: bson.A{url}}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	image, err := s.Collection(Collection).FindOne(ctx, bson.M{"handle": "cat-png"}, nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}

	changed := map[string]bson.M{}
	err = s.WithTransaction(ctx, func(ctx context.Context) error {
		n, err := r.OnImageRemoved(ctx, image, func(_ context.Context, coll string, doc bson.M) error {
			changed[coll+"/"+doc["id"].(string)] = doc
			return nil
		})
		if n != 2 {
			t.Errorf("expected 2 updated documents, got %d", n)
		}
		return err
	})
	if err != nil {
		t.Fatalf("OnImageRemoved: %v", err)
	}
	for _, coll := range []string{"products", "posts"} {
		if n, _ := s.Collection(coll).Count(ctx, bson.M{Field: url}); n != 0 {
			t.Errorf("%s still references the image", coll)
		}
		if n, _ := s.Collection(coll).Count(ctx, bson.M{Field: "https://cdn/x/keep.png"}); n == 0 {
			t.Errorf("%s lost unrelated media", coll)
		}
	}
	if n, _ := s.Collection(Collection).Count(ctx, bson.M{}); n != 0 {
		t.Fatal("image entry not deleted")
	}
	if len(changed) != 2 || changed["products/pr_1"] == nil || changed["posts/post_1"] == nil {
		t.Fatalf("unexpected changed documents %v", changed)
	}
	if got := changed["products/pr_1"][Field]; !reflect.DeepEqual(got, bson.A{"https://cdn/x/keep.png"}) {
		t.Fatalf("changed document is not the stored state: %v", got)
	}
}

func TestOnImageRemoved_ChangedErrorStops(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	url := "https://cdn/x/cat.png"
	_, _ = s.Collection("products").ReplaceOne(ctx, bson.M{"_id": "pr_1"}, bson.M{"_id": "pr_1", "id": "pr_1", Field: bson.A{url}}, true)
	r := NewReporter(s)

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := r.OnImageRemoved(ctx, bson.M{"_id": "img_1", "url": url}, func(context.Context, string, bson.M) error {
			return boom
		})
		return err
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if n, _ := s.Collection("products").Count(ctx, bson.M{Field: url}); n != 1 {
		t.Fatal("aborted cleanup must leave the media in place")
	}
}
