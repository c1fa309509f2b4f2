// Package memory is an in-process document store with multi-document
// transactions. It evaluates the same MongoDB filter, sort, projection and
// update vocabulary that the mongodb store receives, which makes it usable
// as a development backend and as the test double for the relation layer.
//
// Transactions are serialized and run against a private copy of every
// collection they touch; the copies replace the committed state atomically on
// success and are discarded on error, so readers never observe partial
// writes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// IDField is the primary key of stored documents.
const IDField = document.IDField

// Op names a write operation, passed to write hooks.
type Op string

const (
	OpReplace    Op = "replace"
	OpUpdateOne  Op = "update_one"
	OpUpdateMany Op = "update_many"
	OpDeleteOne  Op = "delete_one"
	OpDeleteMany Op = "delete_many"
)

// WriteHook is called before every write. Returning an error fails the write
// (and therefore the surrounding transaction). Tests use it to inject faults.
type WriteHook func(ctx context.Context, op Op, collection string) error

type record struct {
	seq int64
	doc bson.M
}

type collectionData struct {
	records map[string]*record
	nextSeq int64
}

func newCollectionData() *collectionData {
	return &collectionData{records: map[string]*record{}}
}

func (c *collectionData) clone() *collectionData {
	out := &collectionData{records: make(map[string]*record, len(c.records)), nextSeq: c.nextSeq}
	for id, r := range c.records {
		out.records[id] = &record{seq: r.seq, doc: normalizeMap(r.doc)}
	}
	return out
}

// sorted returns records in insertion order.
func (c *collectionData) sorted() []*record {
	out := make([]*record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Store is an in-memory implementation of document.Store.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data map[string]*collectionData
	hook WriteHook
}

// New returns an empty store.
func New() *Store {
	return &Store{data: map[string]*collectionData{}}
}

// SetWriteHook installs (or clears, with nil) the write hook.
func (s *Store) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *Store) writeHook() WriteHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hook
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Collection returns the named collection handle.
func (s *Store) Collection(name string) document.Collection {
	return &Collection{store: s, name: name}
}

type txKey struct{}

type transaction struct {
	store   *Store
	touched map[string]*collectionData
}

func txFrom(ctx context.Context) *transaction {
	tx, _ := ctx.Value(txKey{}).(*transaction)
	return tx
}

// forWrite returns the transaction's private copy of a collection.
func (tx *transaction) forWrite(name string) *collectionData {
	if cd, ok := tx.touched[name]; ok {
		return cd
	}
	tx.store.mu.RLock()
	committed, ok := tx.store.data[name]
	tx.store.mu.RUnlock()
	cd := newCollectionData()
	if ok {
		cd = committed.clone()
	}
	tx.touched[name] = cd
	return cd
}

// WithTransaction runs fn atomically. A ctx that already carries a
// transaction joins it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &transaction{store: s, touched: map[string]*collectionData{}}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.mu.Lock()
	for name, cd := range tx.touched {
		s.data[name] = cd
	}
	s.mu.Unlock()
	return nil
}

// readView returns a consistent view of a collection for ctx. Outside a
// transaction it is a copy taken under the read lock.
func (s *Store) readView(ctx context.Context, name string) *collectionData {
	if tx := txFrom(ctx); tx != nil {
		if cd, ok := tx.touched[name]; ok {
			return cd
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, ok := s.data[name]
	if !ok {
		return newCollectionData()
	}
	return cd.clone()
}

func (s *Store) write(ctx context.Context, name string, op Op, fn func(cd *collectionData) error) error {
	if hook := s.writeHook(); hook != nil {
		if err := hook(ctx, op, name); err != nil {
			return err
		}
	}
	if tx := txFrom(ctx); tx != nil {
		return fn(tx.forWrite(name))
	}
	return s.WithTransaction(ctx, func(txCtx context.Context) error {
		return fn(txFrom(txCtx).forWrite(name))
	})
}

// Dump returns every document of every collection ordered by _id. It is
// meant for state comparisons in tests.
func (s *Store) Dump() map[string][]bson.M {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]bson.M, len(s.data))
	for name, cd := range s.data {
		docs := make([]bson.M, 0, len(cd.records))
		for _, r := range cd.records {
			docs = append(docs, normalizeMap(r.doc))
		}
		sort.Slice(docs, func(i, j int) bool {
			return fmt.Sprint(docs[i][IDField]) < fmt.Sprint(docs[j][IDField])
		})
		if len(docs) > 0 {
			out[name] = docs
		}
	}
	return out
}
