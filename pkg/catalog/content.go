package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/docsync/pkg/ids"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// ShippingMethods stores delivery options.
type ShippingMethods struct {
	*repository.Crud[ShippingMethod]
}

func newShippingMethods(d *Driver) *ShippingMethods {
	e := synchronizer.Entity{
		Collection: CollShippingMethods,
		Media:      true,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			if name, ok := dr.Doc["name"].(string); ok {
				dr.AddTokens(strings.Fields(strings.ToLower(name))...)
			}
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &ShippingMethods{repository.NewCrud[ShippingMethod](d.sync, e, ids.PrefixShippingMethod, d.limits)}
}

// Posts stores content pages.
type Posts struct {
	*repository.Crud[Post]
}

func newPosts(d *Driver) *Posts {
	e := synchronizer.Entity{Collection: CollPosts, Media: true}
	d.sync.RegisterEntity(e)
	return &Posts{repository.NewCrud[Post](d.sync, e, ids.PrefixPost, d.limits)}
}

// Tags stores named value lists.
type Tags struct {
	*repository.Crud[Tag]
}

func newTags(d *Driver) *Tags {
	e := synchronizer.Entity{
		Collection: CollTags,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			if h, _ := dr.Doc["handle"].(string); h == "" {
				return fmt.Errorf("%w: tag %s without handle", synchronizer.ErrInvalid, dr.ID)
			}
			dr.AddTokens(synchronizer.RefList(dr.Doc["values"])...)
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &Tags{repository.NewCrud[Tag](d.sync, e, ids.PrefixTag, d.limits)}
}

// Notifications stores dashboard messages.
type Notifications struct {
	*repository.Crud[Notification]
	d *Driver
}

func newNotifications(d *Driver) *Notifications {
	e := synchronizer.Entity{
		Collection: CollNotifications,
		BeforeSave: func(_ context.Context, dr *synchronizer.Draft) error {
			dr.AddTokens(synchronizer.RefList(dr.Doc["search"])...)
			if a, ok := dr.Doc["author"].(string); ok {
				dr.AddTokens(synchronizer.Token("author", strings.ToLower(a)))
			}
			return nil
		},
	}
	d.sync.RegisterEntity(e)
	return &Notifications{Crud: repository.NewCrud[Notification](d.sync, e, ids.PrefixNotification, d.limits), d: d}
}

// UpsertBulk saves every notification in one transaction: either all are
// stored or none is.
func (n *Notifications) UpsertBulk(ctx context.Context, items []Notification) error {
	docs := make([]bson.M, 0, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = ids.New(ids.PrefixNotification)
		}
		doc, err := repository.Encode(&items[i])
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	return n.d.sync.Run(ctx, synchronizer.OpUpsert, CollNotifications, "bulk", func(ctx context.Context) error {
		for _, doc := range docs {
			if err := n.d.sync.UpsertInTx(ctx, n.Entity(), doc, nil); err != nil {
				return err
			}
		}
		return nil
	})
}
