package catalog

import (
	"context"
	"fmt"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/media"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// Images is the media usage index. Entries are created as documents report
// their media; removing one scrubs its URL from every document.
type Images struct {
	*repository.Crud[Image]
	d *Driver
}

func newImages(d *Driver) *Images {
	e := synchronizer.Entity{
		Collection: CollImages,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			u, _ := dr.Doc["url"].(string)
			if u == "" {
				return fmt.Errorf("%w: image %s without url", synchronizer.ErrInvalid, dr.ID)
			}
			if h, _ := dr.Doc["handle"].(string); h == "" {
				dr.Doc["handle"] = media.HandleFromURL(u)
			}
			if n, _ := dr.Doc["name"].(string); n == "" {
				dr.Doc["name"] = media.NameFromURL(u)
			}
			h, _ := dr.Doc["handle"].(string)
			dr.AddTokens(h)
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &Images{Crud: repository.NewCrud[Image](d.sync, e, ids.PrefixImage, d.limits), d: d}
}

// Delete removes the image and pulls its URL from every collection that
// may reference media. Each rewritten document's copy is pushed into the
// documents embedding it within the same transaction.
func (im *Images) Delete(ctx context.Context, idOrHandle string) error {
	return im.d.sync.Run(ctx, synchronizer.OpRemove, CollImages, idOrHandle, func(ctx context.Context) error {
		doc, err := im.d.sync.Find(ctx, CollImages, idOrHandle)
		if err != nil || doc == nil {
			return err
		}
		n, err := im.d.sync.Media().OnImageRemoved(ctx, doc, func(ctx context.Context, collection string, changed bson.M) error {
			_, err := im.d.sync.Propagate(ctx, collection, changed, changed)
			return err
		})
		if err != nil {
			return err
		}
		im.d.sync.Metrics().AddFanout(CollImages, n)
		return nil
	})
}

// Report indexes urls for callers that upload media outside any document
// write. Every URL gets an entry keyed by its handle.
func (im *Images) Report(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	list := make(bson.A, 0, len(urls))
	for _, u := range urls {
		list = append(list, u)
	}
	return im.d.sync.Run(ctx, synchronizer.OpUpsert, CollImages, "report", func(ctx context.Context) error {
		return im.d.sync.Media().Report(ctx, bson.M{media.Field: list})
	})
}

// Remove is Delete reporting success as a bool.
func (im *Images) Remove(ctx context.Context, idOrHandle string) bool {
	return im.Delete(ctx, idOrHandle) == nil
}
