package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimburion/docsync/pkg/catalog"
	"github.com/nimburion/docsync/pkg/config"
	"github.com/nimburion/docsync/pkg/health"
	"github.com/nimburion/docsync/pkg/observability/logger"
	"github.com/nimburion/docsync/pkg/observability/metrics"
	"github.com/nimburion/docsync/pkg/observability/tracing"
	"github.com/nimburion/docsync/pkg/query"
	"github.com/nimburion/docsync/pkg/store"
	"github.com/nimburion/docsync/pkg/version"
	"go.mongodb.org/mongo-driver/bson"
)

// Runtime is the opened document store with the catalog driver and the
// observability it reports to.
type Runtime struct {
	Config  *config.Config
	Logger  logger.Logger
	Backend *store.Backend
	Driver  *catalog.Driver
	Metrics *metrics.Registry
	tracer  *tracing.TracerProvider
}

// OpenRuntime connects the configured store and wires the catalog over it.
func OpenRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	backend, err := store.NewDocumentStore(cfg.Database, log)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return NewRuntime(cfg, log, backend, tp), nil
}

// NewRuntime wires the catalog over an already opened backend. tp may be nil.
func NewRuntime(cfg *config.Config, log logger.Logger, backend *store.Backend, tp *tracing.TracerProvider) *Runtime {
	rt := &Runtime{Config: cfg, Logger: log, Backend: backend, tracer: tp}
	opts := []catalog.Option{
		catalog.WithLogger(log),
		catalog.WithLimits(query.Limits{
			DefaultPageSize: cfg.Sync.DefaultPageSize,
			MaxPageSize:     cfg.Sync.MaxPageSize,
		}),
	}
	if len(cfg.Sync.MediaCollections) > 0 {
		opts = append(opts, catalog.WithMediaCollections(cfg.Sync.MediaCollections))
	}
	if cfg.Observability.MetricsEnabled {
		rt.Metrics = metrics.NewRegistry()
		opts = append(opts, catalog.WithMetrics(rt.Metrics.Sync()))
	}
	rt.Driver = catalog.New(backend.Store, opts...)
	return rt
}

// HealthCheck checks that the store answers and accepts transactions.
func (r *Runtime) HealthCheck(ctx context.Context) health.AggregatedResult {
	timeout := r.Config.Database.QueryTimeout
	reg := health.NewRegistry()
	reg.Register(health.NewAdapterChecker("document_store", r.Backend.Adapter, timeout))
	reg.Register(health.NewTransactionChecker("transactions", r.Backend.Store, catalog.CollProducts, timeout))
	return reg.Check(ctx)
}

// EnsureIndexes creates the catalog indexes and returns how many collections
// were covered. The in-memory store has no indexes.
func (r *Runtime) EnsureIndexes(ctx context.Context) (int, error) {
	specs := r.Driver.IndexSpecs()
	if r.Backend.Mongo == nil {
		r.Logger.Info("document store has no indexes; skipping", "type", r.Config.Database.Type)
		return 0, nil
	}
	if err := r.Backend.Mongo.EnsureIndexes(ctx, specs); err != nil {
		return 0, fmt.Errorf("ensure indexes: %w", err)
	}
	return len(specs), nil
}

// Counts returns the number of documents in every catalog collection.
func (r *Runtime) Counts(ctx context.Context) (map[string]int64, error) {
	out := map[string]int64{}
	st := r.Driver.Store()
	for _, name := range r.Driver.CollectionNames() {
		n, err := st.Collection(name).Count(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		out[name] = n
	}
	return out, nil
}

// Close flushes traces and releases the store connection.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.tracer != nil {
		if err := r.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Backend.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
