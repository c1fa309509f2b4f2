package synchronizer

import (
	"context"
	"sort"
	"sync"

	"github.com/nimburion/docsync/pkg/relations"
	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// ReferenceHolder is a collection that embeds documents of another
// collection under one relation. The synchronizer calls it to push a fresh
// copy of a referenced document or to unlink a removed one.
type ReferenceHolder interface {
	// Owner is the collection holding the relation.
	Owner() string
	// Relation is the relation name on the owner.
	Relation() string
	// PushReference refreshes the embedded copy of target in every owner
	// document that references it. previous is the stored state before the
	// write, or nil.
	PushReference(ctx context.Context, target, previous bson.M) (int64, error)
	// PullReference removes targetID, its embedded copy and the given search
	// tokens from every owner document that references it.
	PullReference(ctx context.Context, targetID string, tokens []string) (int64, error)
}

// Embedding is the standard ReferenceHolder over a store collection.
type Embedding struct {
	Store       document.Store
	OwnerName   string
	Name        string
	TokenPrefix string
}

func (e Embedding) Owner() string    { return e.OwnerName }
func (e Embedding) Relation() string { return e.Name }

func (e Embedding) PushReference(ctx context.Context, target, previous bson.M) (int64, error) {
	id, _ := target["id"].(string)
	if id == "" {
		return 0, nil
	}
	coll := e.Store.Collection(e.OwnerName)
	holders := bson.M{relations.IDsPath(e.Name): id}
	res, err := coll.UpdateMany(ctx, holders, bson.M{
		"$set": bson.M{relations.EntryPath(e.Name, id): relations.Snapshot(target)},
	})
	if err != nil {
		return 0, err
	}

	// a changed handle renames the owner's handle token
	oldHandle, _ := previous["handle"].(string)
	newHandle, _ := target["handle"].(string)
	if e.TokenPrefix != "" && oldHandle != "" && oldHandle != newHandle {
		if _, err := coll.UpdateMany(ctx, holders, bson.M{
			"$pull": bson.M{relations.SearchPath: Token(e.TokenPrefix, oldHandle)},
		}); err != nil {
			return 0, err
		}
		if newHandle != "" {
			if _, err := coll.UpdateMany(ctx, holders, bson.M{
				"$addToSet": bson.M{relations.SearchPath: Token(e.TokenPrefix, newHandle)},
			}); err != nil {
				return 0, err
			}
		}
	}
	return res.Matched, nil
}

func (e Embedding) PullReference(ctx context.Context, targetID string, tokens []string) (int64, error) {
	pull := bson.M{relations.IDsPath(e.Name): targetID}
	if len(tokens) > 0 {
		arr := bson.A{}
		for _, t := range tokens {
			arr = append(arr, t)
		}
		pull[relations.SearchPath] = bson.M{"$in": arr}
	}
	res, err := e.Store.Collection(e.OwnerName).UpdateMany(ctx,
		bson.M{relations.IDsPath(e.Name): targetID},
		bson.M{
			"$pull":  pull,
			"$unset": bson.M{relations.EntryPath(e.Name, targetID): ""},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.Matched, nil
}

// Registry maps a referenced collection to the holders embedding it.
type Registry struct {
	mu      sync.RWMutex
	holders map[string][]ReferenceHolder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{holders: map[string][]ReferenceHolder{}}
}

// Register declares that holder embeds documents of target.
func (r *Registry) Register(target string, holder ReferenceHolder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holders[target] = append(r.holders[target], holder)
}

// Holders returns the holders embedding documents of target.
func (r *Registry) Holders(target string) []ReferenceHolder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ReferenceHolder(nil), r.holders[target]...)
}

// Relations returns, per owner collection, the relation names maintained on
// it, sorted.
func (r *Registry) Relations() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]map[string]bool{}
	for _, hs := range r.holders {
		for _, h := range hs {
			if seen[h.Owner()] == nil {
				seen[h.Owner()] = map[string]bool{}
			}
			seen[h.Owner()][h.Relation()] = true
		}
	}
	out := make(map[string][]string, len(seen))
	for owner, names := range seen {
		for n := range names {
			out[owner] = append(out[owner], n)
		}
		sort.Strings(out[owner])
	}
	return out
}
