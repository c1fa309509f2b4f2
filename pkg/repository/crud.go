// Package repository provides the generic read and write primitives every
// catalog entity is built from: get by id or handle, bulk get, list, count,
// upsert and remove. Reads translate queries, fetch, expand relations and
// sanitize; writes delegate to the synchronizer.
package repository

import (
	"context"

	"github.com/nimburion/docsync/pkg/query"
)

// Options controls a single-document or bulk read.
type Options struct {
	// Expand names the relations to hydrate; "*" expands all of them.
	Expand []string
}

// Reader provides read operations for entities.
type Reader[T any] interface {
	Get(ctx context.Context, idOrHandle string, opts Options) (*T, error)
	GetBulk(ctx context.Context, refs []string, opts Options) ([]*T, error)
	List(ctx context.Context, q query.Query) ([]T, error)
	Count(ctx context.Context, q query.Query) (int64, error)
}

// Writer provides write operations for entities. Upsert and Remove report
// success; Save and Delete return the underlying error.
type Writer[T any] interface {
	Upsert(ctx context.Context, entity *T, searchTerms ...string) bool
	Save(ctx context.Context, entity *T, searchTerms ...string) error
	Remove(ctx context.Context, idOrHandle string) bool
	Delete(ctx context.Context, idOrHandle string) error
}

// Repository combines Reader and Writer.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
}
