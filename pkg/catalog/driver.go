// Package catalog is the commerce document driver: one typed repository per
// entity, all writing through a shared synchronizer so that every embedded
// copy, search token and media entry stays consistent with its source.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nimburion/docsync/pkg/media"
	"github.com/nimburion/docsync/pkg/observability/logger"
	"github.com/nimburion/docsync/pkg/observability/metrics"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository"
	"github.com/nimburion/docsync/pkg/repository/document"
	mongostore "github.com/nimburion/docsync/pkg/store/mongodb"
	"github.com/nimburion/docsync/pkg/synchronizer"
	"go.mongodb.org/mongo-driver/bson"
)

// Driver exposes the entity repositories.
type Driver struct {
	sync   *synchronizer.Synchronizer
	limits query.Limits

	Products        *Products
	Collections     *Collections
	Discounts       *Discounts
	Storefronts     *Storefronts
	ShippingMethods *ShippingMethods
	Posts           *Posts
	Images          *Images
	Customers       *Customers
	Orders          *Orders
	Tags            *Tags
	Notifications   *Notifications
	AuthUsers       *AuthUsers
}

type options struct {
	log      logger.Logger
	metrics  *metrics.SyncMetrics
	limits   query.Limits
	mediaFor []string
	now      func() time.Time
}

// Option configures a Driver.
type Option func(*options)

// WithLogger sets the logger used for aborted transactions.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records transaction and fan-out metrics.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLimits overrides the page size limits.
func WithLimits(l query.Limits) Option {
	return func(o *options) {
		if l.DefaultPageSize > 0 {
			o.limits.DefaultPageSize = l.DefaultPageSize
		}
		if l.MaxPageSize > 0 {
			o.limits.MaxPageSize = l.MaxPageSize
		}
	}
}

// WithMediaCollections overrides which collections image removal scans.
func WithMediaCollections(names []string) Option {
	return func(o *options) { o.mediaFor = names }
}

// WithClock overrides the time source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires every entity over store.
func New(store document.Store, opts ...Option) *Driver {
	o := options{limits: query.DefaultLimits, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	syncOpts := []synchronizer.Option{
		synchronizer.WithClock(o.now),
		synchronizer.WithMediaReporter(media.NewReporter(store,
			media.WithCollections(o.mediaFor),
			media.WithClock(o.now),
		)),
	}
	if o.log != nil {
		syncOpts = append(syncOpts, synchronizer.WithLogger(o.log))
	}
	if o.metrics != nil {
		syncOpts = append(syncOpts, synchronizer.WithMetrics(o.metrics))
	}

	d := &Driver{sync: synchronizer.New(store, syncOpts...), limits: o.limits}
	d.Products = newProducts(d)
	d.Collections = newCollections(d)
	d.Discounts = newDiscounts(d)
	d.Storefronts = newStorefronts(d)
	d.ShippingMethods = newShippingMethods(d)
	d.Posts = newPosts(d)
	d.Images = newImages(d)
	d.Customers = newCustomers(d)
	d.Orders = newOrders(d)
	d.Tags = newTags(d)
	d.Notifications = newNotifications(d)
	d.AuthUsers = newAuthUsers(d)

	reg := d.sync.Registry()
	reg.Register(CollDiscounts, synchronizer.Embedding{
		Store: store, OwnerName: CollProducts, Name: RelDiscounts, TokenPrefix: discountPrefix,
	})
	reg.Register(CollProducts, synchronizer.Embedding{
		Store: store, OwnerName: CollProducts, Name: RelVariants,
	})
	return d
}

// Synchronizer returns the shared synchronizer.
func (d *Driver) Synchronizer() *synchronizer.Synchronizer { return d.sync }

// Store returns the underlying document store.
func (d *Driver) Store() document.Store { return d.sync.Store() }

// CollectionNames lists every collection the driver writes.
func (d *Driver) CollectionNames() []string {
	return []string{
		CollProducts, CollCollections, CollDiscounts, CollStorefronts,
		CollShippingMethods, CollPosts, CollImages, CollCustomers,
		CollOrders, CollTags, CollNotifications, CollAuthUsers,
	}
}

// IndexSpecs describes the indexes each collection needs, including one per
// maintained relation id set.
func (d *Driver) IndexSpecs() []mongostore.CollectionIndexes {
	rels := d.sync.Registry().Relations()
	names := d.CollectionNames()
	sort.Strings(names)
	out := make([]mongostore.CollectionIndexes, 0, len(names))
	for _, n := range names {
		out = append(out, mongostore.CollectionIndexes{Collection: n, Relations: rels[n]})
	}
	return out
}

// related decodes the requested relation of the document matching
// idOrHandle in collection. A missing document yields nil.
func related[T any](ctx context.Context, d *Driver, collection, idOrHandle, rel string) ([]T, error) {
	doc, err := d.sync.Find(ctx, collection, idOrHandle)
	if err != nil || doc == nil {
		return nil, err
	}
	expanded := relations.ExpandOne(doc, []string{rel})
	arr, ok := expanded[rel].(bson.A)
	if !ok {
		return []T{}, nil
	}
	docs := make([]bson.M, 0, len(arr))
	for _, it := range arr {
		if m, ok := it.(bson.M); ok {
			docs = append(docs, m)
		}
	}
	return repository.DecodeAll[T](docs)
}

// holderFilter selects documents whose rel relation contains the document
// matching idOrHandle in target. ok is false when that document is missing.
func (d *Driver) holderFilter(ctx context.Context, target, idOrHandle, rel string) (bson.M, bool, error) {
	doc, err := d.sync.Find(ctx, target, idOrHandle)
	if err != nil {
		return nil, false, fmt.Errorf("load %s %s: %w", target, idOrHandle, err)
	}
	if doc == nil {
		return nil, false, nil
	}
	return bson.M{relations.IDsPath(rel): doc[document.IDField]}, true, nil
}

func activeFilter() query.Predicate {
	return query.Predicate{Field: "active", Op: query.OpEq, Value: true}
}
