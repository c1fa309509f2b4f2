package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nimburion/docsync/pkg/config"
	"github.com/nimburion/docsync/pkg/observability/logger"
	"github.com/nimburion/docsync/pkg/repository/document"
	"github.com/nimburion/docsync/pkg/store/memory"
	"github.com/nimburion/docsync/pkg/store/mongodb"
)

// Backend is an opened document store together with the adapter owning its
// connection.
type Backend struct {
	Store   document.Store
	Adapter Adapter
	// Mongo is set when the backend is MongoDB.
	Mongo *mongodb.Adapter
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	if b == nil || b.Adapter == nil {
		return nil
	}
	return b.Adapter.Close()
}

// NewDocumentStore selects and opens the document store named by cfg.Type.
// Example: backend, err := store.NewDocumentStore(cfg.Database, log)
func NewDocumentStore(cfg config.DatabaseConfig, log logger.Logger) (*Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMongoDB:
		adapter, err := mongodb.NewAdapter(mongodb.Config{
			URL:                cfg.URL,
			Database:           cfg.DatabaseName,
			ConnectTimeout:     cfg.ConnectTimeout,
			OperationTimeout:   cfg.QueryTimeout,
			TransactionTimeout: cfg.TransactionTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		st, err := document.NewMongoStore(adapter)
		if err != nil {
			_ = adapter.Close()
			return nil, err
		}
		return &Backend{Store: st, Adapter: adapter, Mongo: adapter}, nil
	case config.DatabaseTypeMemory:
		st := memory.New()
		log.Warn("using in-memory document store; data is lost on exit")
		return &Backend{Store: st, Adapter: memoryAdapter{st}}, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: mongodb, memory)", cfg.Type)
	}
}

type memoryAdapter struct {
	st *memory.Store
}

func (m memoryAdapter) HealthCheck(ctx context.Context) error { return m.st.Ping(ctx) }
func (m memoryAdapter) Close() error                          { return nil }
