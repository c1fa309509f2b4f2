package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

const defaultTimeout = 5 * time.Second

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports whether a store connection answers.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout}
}

func (c *AdapterChecker) Name() string { return c.name }

func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	return run(ctx, c.name, c.timeout, c.adapter.HealthCheck)
}

// TransactionChecker opens a transaction and reads one document inside it.
// A MongoDB deployment without a replica set answers pings but rejects
// transactions, so liveness alone is not enough for the synchronizer.
type TransactionChecker struct {
	name       string
	store      document.Store
	collection string
	timeout    time.Duration
}

// NewTransactionChecker reads collection through store inside a transaction.
func NewTransactionChecker(name string, store document.Store, collection string, timeout time.Duration) *TransactionChecker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TransactionChecker{name: name, store: store, collection: collection, timeout: timeout}
}

func (c *TransactionChecker) Name() string { return c.name }

func (c *TransactionChecker) Check(ctx context.Context) CheckResult {
	return run(ctx, c.name, c.timeout, func(ctx context.Context) error {
		return c.store.WithTransaction(ctx, func(txCtx context.Context) error {
			_, err := c.store.Collection(c.collection).FindOne(txCtx, bson.M{}, bson.M{document.IDField: 1})
			if err != nil && !errors.Is(err, document.ErrNotFound) {
				return fmt.Errorf("read %s in transaction: %w", c.collection, err)
			}
			return nil
		})
	})
}

func run(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := fn(checkCtx); err != nil {
		return CheckResult{Name: name, Status: StatusUnhealthy, Error: err.Error(), Duration: time.Since(start)}
	}
	return CheckResult{Name: name, Status: StatusHealthy, Message: "OK", Duration: time.Since(start)}
}
