// Package media tracks which image URLs are referenced by stored documents.
// Every URL found in a document's media list gets an entry in the images
// collection, and removing an image pulls its URL from every document that
// may reference it.
package media

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	// Collection is where image entries live.
	Collection = "images"
	// Field is the media list of any document.
	Field = "media"
)

// DefaultCollections may reference media.
var DefaultCollections = []string{
	"products", "collections", "discounts", "storefronts", "shipping_methods", "posts",
}

// Reporter maintains the images collection.
type Reporter struct {
	store       document.Store
	collections []string
	now         func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithCollections overrides the collections that may reference media.
func WithCollections(names []string) Option {
	return func(r *Reporter) {
		if len(names) > 0 {
			r.collections = append([]string(nil), names...)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a reporter writing through store.
func NewReporter(store document.Store, opts ...Option) *Reporter {
	r := &Reporter{store: store, collections: DefaultCollections, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Collections returns the collections that may reference media.
func (r *Reporter) Collections() []string {
	return append([]string(nil), r.collections...)
}

// URLs returns the media list of doc.
func URLs(doc bson.M) []string {
	var out []string
	switch v := doc[Field].(type) {
	case []string:
		out = append(out, v...)
	case bson.A:
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// HandleFromURL derives an image handle from the last path segment of u.
func HandleFromURL(u string) string {
	name := NameFromURL(u)
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// NameFromURL is the file name part of u.
func NameFromURL(u string) string {
	p := u
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	return path.Base(strings.TrimRight(p, "/"))
}

// Report registers every media URL of doc. It must run inside the caller's
// transaction so the index commits with the document.
func (r *Reporter) Report(ctx context.Context, doc bson.M) error {
	now := r.now().UTC().Format(time.RFC3339Nano)
	images := r.store.Collection(Collection)
	for _, u := range URLs(doc) {
		handle := HandleFromURL(u)
		if handle == "" {
			continue
		}
		name := NameFromURL(u)
		tokens := relations.Dedup(append([]string{handle, name}, strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})...))
		each := bson.A{}
		for _, t := range tokens {
			each = append(each, t)
		}
		id := ids.New(ids.PrefixImage)
		_, err := images.UpdateOne(ctx, bson.M{"handle": handle}, bson.M{
			"$set": bson.M{
				"handle":     handle,
				"name":       name,
				"url":        u,
				"updated_at": now,
			},
			"$addToSet": bson.M{relations.SearchPath: bson.M{"$each": each}},
			"$setOnInsert": bson.M{
				document.IDField: id,
				"id":             id,
				"created_at":     now,
			},
		}, true)
		if err != nil {
			return fmt.Errorf("report media %s: %w", u, err)
		}
	}
	return nil
}

// Changed is called with the stored state of every document a media
// cleanup rewrote, so copies embedded elsewhere can be refreshed.
type Changed func(ctx context.Context, collection string, doc bson.M) error

// OnImageRemoved pulls image's URL from every collection that may reference
// media, then deletes the image. It must run inside the caller's
// transaction. changed, when not nil, sees each rewritten document. The
// returned count is the number of documents updated.
func (r *Reporter) OnImageRemoved(ctx context.Context, image bson.M, changed Changed) (int64, error) {
	u, _ := image["url"].(string)
	var touched int64
	if u != "" {
		for _, name := range r.collections {
			n, err := r.pull(ctx, name, u, changed)
			touched += n
			if err != nil {
				return touched, err
			}
		}
	}
	if _, err := r.store.Collection(Collection).DeleteOne(ctx, bson.M{document.IDField: image[document.IDField]}); err != nil {
		return touched, fmt.Errorf("delete image: %w", err)
	}
	return touched, nil
}

func (r *Reporter) pull(ctx context.Context, name, u string, changed Changed) (int64, error) {
	coll := r.store.Collection(name)
	holding, err := coll.Find(ctx, bson.M{Field: u}, document.FindOptions{Projection: bson.M{document.IDField: 1}})
	if err != nil {
		return 0, fmt.Errorf("find media holders in %s: %w", name, err)
	}
	if len(holding) == 0 {
		return 0, nil
	}
	keys := make(bson.A, 0, len(holding))
	for _, d := range holding {
		keys = append(keys, d[document.IDField])
	}
	byKey := bson.M{document.IDField: bson.M{"$in": keys}}
	res, err := coll.UpdateMany(ctx, byKey, bson.M{"$pull": bson.M{Field: u}})
	if err != nil {
		return 0, fmt.Errorf("pull media from %s: %w", name, err)
	}
	if changed == nil {
		return res.Modified, nil
	}
	docs, err := coll.Find(ctx, byKey, document.FindOptions{})
	if err != nil {
		return res.Modified, fmt.Errorf("reload %s after media pull: %w", name, err)
	}
	for _, d := range docs {
		if err := changed(ctx, name, d); err != nil {
			return res.Modified, err
		}
	}
	return res.Modified, nil
}
