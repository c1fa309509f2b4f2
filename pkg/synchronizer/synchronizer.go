// Package synchronizer keeps denormalized relation copies consistent. Every
// upsert or remove runs as one store transaction that rewrites the
// document's own relations, propagates its new copy into (or unlinks it
// from) every document embedding it, and commits the document write itself.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimburion/docsync/pkg/media"
	"github.com/nimburion/docsync/pkg/observability/logger"
	"github.com/nimburion/docsync/pkg/observability/metrics"
	"github.com/nimburion/docsync/pkg/observability/tracing"
	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrAborted wraps the cause of a failed synchronization transaction.
	// Nothing the transaction wrote is visible.
	ErrAborted = errors.New("synchronization aborted")
	// ErrInvalid marks a document rejected before the transaction started.
	ErrInvalid = errors.New("invalid document")
)

// Operation names a synchronizer entry point.
type Operation string

const (
	OpUpsert Operation = "upsert"
	OpRemove Operation = "remove"
)

// Synchronizer runs relation-maintaining transactions against a store.
type Synchronizer struct {
	store    document.Store
	log      logger.Logger
	metrics  *metrics.SyncMetrics
	media    *media.Reporter
	registry *Registry
	now      func() time.Time
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logger.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records transactions into m.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithMediaReporter replaces the default media reporter.
func WithMediaReporter(r *media.Reporter) Option {
	return func(s *Synchronizer) {
		if r != nil {
			s.media = r
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New creates a synchronizer over store.
func New(store document.Store, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		log:      logger.Nop(),
		registry: NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.media == nil {
		s.media = media.NewReporter(store, media.WithClock(s.now))
	}
	return s
}

// Store returns the underlying store.
func (s *Synchronizer) Store() document.Store { return s.store }

// Registry returns the reference holder registry.
func (s *Synchronizer) Registry() *Registry { return s.registry }

// Media returns the media reporter.
func (s *Synchronizer) Media() *media.Reporter { return s.media }

// Metrics returns the sync metrics, possibly nil.
func (s *Synchronizer) Metrics() *metrics.SyncMetrics { return s.metrics }

// Logger returns the configured logger.
func (s *Synchronizer) Logger() logger.Logger { return s.log }

// Now returns the current timestamp in the stored format.
func (s *Synchronizer) Now() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Run executes fn in one transaction. A failure is logged with its root
// cause and returned wrapped in ErrAborted.
func (s *Synchronizer) Run(ctx context.Context, op Operation, collection, id string, fn func(ctx context.Context) error) error {
	txID := uuid.NewString()
	ctx = logger.ContextWithFields(ctx, "tx_id", txID)
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBTx,
		tracing.WithDBCollection(collection),
		tracing.WithDocumentID(id),
		tracing.WithTxID(txID),
	)
	start := time.Now()

	err := s.store.WithTransaction(ctx, fn)

	s.metrics.RecordTransaction(collection, string(op), err, time.Since(start))
	tracing.End(span, err)
	log := s.log.WithContext(ctx).With("operation", string(op), "collection", collection, "id", id)
	if err != nil {
		log.Error("synchronization transaction aborted", "error", err)
		return fmt.Errorf("%w: %s %s %s: %w", ErrAborted, op, collection, id, err)
	}
	log.Debug("synchronization transaction committed", "duration", time.Since(start))
	return nil
}

// Find loads a raw stored document by id or handle. A miss returns nil
// without error.
func (s *Synchronizer) Find(ctx context.Context, collection, idOrHandle string) (bson.M, error) {
	doc, err := s.store.Collection(collection).FindOne(ctx, document.ByIDOrHandle(idOrHandle), nil)
	if errors.Is(err, document.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
