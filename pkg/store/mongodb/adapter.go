// Package mongodb provides MongoDB connectivity, session transactions and
// index management for docsync.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimburion/docsync/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// ErrClosed is returned by operations on a closed adapter.
var ErrClosed = errors.New("mongodb adapter is closed")

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client    *mongo.Client
	database  string
	logger    logger.Logger
	timeout   time.Duration
	txTimeout time.Duration
	mu        sync.RWMutex
	closed    bool
}

// Config holds MongoDB adapter configuration.
type Config struct {
	URL                string
	Database           string
	ConnectTimeout     time.Duration
	OperationTimeout   time.Duration
	TransactionTimeout time.Duration
}

// NewAdapter connects to MongoDB and verifies the connection with a ping.
// It does not create collections or indexes; see EnsureIndexes.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongodb URL is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb database is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg = withDefaults(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("MongoDB connection established", "database", cfg.Database)
	return &Adapter{
		client:    client,
		database:  cfg.Database,
		logger:    log,
		timeout:   cfg.OperationTimeout,
		txTimeout: cfg.TransactionTimeout,
	}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 5 * time.Second
	}
	if cfg.TransactionTimeout <= 0 {
		cfg.TransactionTimeout = 30 * time.Second
	}
	return cfg
}

func (a *Adapter) Client() *mongo.Client {
	return a.client
}

func (a *Adapter) Database() *mongo.Database {
	return a.client.Database(a.database)
}

func (a *Adapter) Collection(name string) *mongo.Collection {
	return a.Database().Collection(name)
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

func (a *Adapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.client.Ping(ctx, readpref.Primary())
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("MongoDB health check failed", "error", err)
		return fmt.Errorf("mongodb health check failed: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	return nil
}

// TransactionOptions returns the options every docsync transaction runs with:
// primary reads, local read concern and majority write acknowledgement.
func TransactionOptions() *options.TransactionOptions {
	return options.Transaction().
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Local()).
		SetWriteConcern(writeconcern.Majority())
}

// WithTransaction runs fn inside a session transaction. The ctx handed to fn
// is the session context; collection calls must use it to join the
// transaction. The whole transaction is bounded by the configured
// transaction timeout unless ctx already carries a deadline.
//
// fn runs once and the commit is attempted once. A conflicting write or an
// unknown commit result is returned to the caller, never retried here.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.isClosed() {
		return ErrClosed
	}

	txCtx, cancel := a.withTimeout(ctx, a.txTimeout)
	defer cancel()

	session, err := a.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongodb session: %w", err)
	}
	defer session.EndSession(context.Background())

	return runTransaction(txCtx, session, func(c context.Context) context.Context {
		return mongo.NewSessionContext(c, session)
	}, fn, a.logger)
}

// txSession is the part of mongo.Session a single transaction attempt uses.
type txSession interface {
	StartTransaction(opts ...*options.TransactionOptions) error
	AbortTransaction(ctx context.Context) error
	CommitTransaction(ctx context.Context) error
}

func runTransaction(ctx context.Context, session txSession, bind func(context.Context) context.Context, fn func(ctx context.Context) error, log logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	if err := session.StartTransaction(TransactionOptions()); err != nil {
		return fmt.Errorf("failed to start mongodb transaction: %w", err)
	}
	sc := bind(ctx)
	if err := fn(sc); err != nil {
		// abort even when ctx is already done
		if abortErr := session.AbortTransaction(bind(context.WithoutCancel(ctx))); abortErr != nil {
			log.Warn("failed to abort mongodb transaction", "error", abortErr)
		}
		return err
	}
	if err := session.CommitTransaction(sc); err != nil {
		return fmt.Errorf("failed to commit mongodb transaction: %w", err)
	}
	return nil
}

// OperationContext bounds a single operation by the operation timeout unless
// ctx already carries a deadline. Session values in ctx are preserved.
func (a *Adapter) OperationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return a.withTimeout(ctx, a.timeout)
}

func (a *Adapter) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
