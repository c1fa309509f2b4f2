package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/nimburion/docsync/pkg/repository/document"
	"go.mongodb.org/mongo-driver/bson"
)

// Collection is a named collection inside a Store.
type Collection struct {
	store *Store
	name  string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) matching(cd *collectionData, filter bson.M) ([]*record, error) {
	var out []*record
	for _, r := range cd.sorted() {
		ok, err := Match(r.doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M, projection bson.M) (bson.M, error) {
	docs, err := c.Find(ctx, filter, document.FindOptions{Limit: 1, Projection: projection})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, document.ErrNotFound
	}
	return docs[0], nil
}

func (c *Collection) Find(ctx context.Context, filter bson.M, opts document.FindOptions) ([]bson.M, error) {
	recs, err := c.matching(c.store.readView(ctx, c.name), filter)
	if err != nil {
		return nil, err
	}
	if len(opts.Sort) > 0 {
		sortRecords(recs, opts.Sort)
	}
	if opts.Limit > 0 && int64(len(recs)) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	out := make([]bson.M, 0, len(recs))
	for _, r := range recs {
		out = append(out, project(normalizeMap(r.doc), opts.Projection))
	}
	return out, nil
}

func sortRecords(recs []*record, spec bson.D) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, key := range spec {
			dir := 1
			if f, ok := toFloat64(normalize(key.Value)); ok && f < 0 {
				dir = -1
			}
			a, aok := getPath(recs[i].doc, key.Key)
			b, bok := getPath(recs[j].doc, key.Key)
			if !aok {
				a = nil
			}
			if !bok {
				b = nil
			}
			if c := sortCompare(a, b); c != 0 {
				return c*dir < 0
			}
		}
		return false
	})
}

func (c *Collection) Count(ctx context.Context, filter bson.M) (int64, error) {
	recs, err := c.matching(c.store.readView(ctx, c.name), filter)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (c *Collection) ReplaceOne(ctx context.Context, filter bson.M, doc bson.M, upsert bool) (document.UpdateResult, error) {
	var res document.UpdateResult
	err := c.store.write(ctx, c.name, OpReplace, func(cd *collectionData) error {
		recs, err := c.matching(cd, filter)
		if err != nil {
			return err
		}
		replacement := normalizeMap(doc)
		if len(recs) > 0 {
			target := recs[0]
			id := target.doc[IDField]
			if newID, ok := replacement[IDField]; ok && !valuesEqual(newID, id) {
				return fmt.Errorf("cannot modify immutable field %s", IDField)
			}
			replacement[IDField] = id
			res.Matched, res.Modified = 1, 1
			target.doc = replacement
			return nil
		}
		if !upsert {
			return nil
		}
		if _, ok := replacement[IDField]; !ok {
			seedFromFilter(replacement, filter)
		}
		if err := insert(cd, replacement); err != nil {
			return err
		}
		res.Upserted = true
		return nil
	})
	return res, err
}

func (c *Collection) UpdateOne(ctx context.Context, filter bson.M, update bson.M, upsert bool) (document.UpdateResult, error) {
	var res document.UpdateResult
	err := c.store.write(ctx, c.name, OpUpdateOne, func(cd *collectionData) error {
		recs, err := c.matching(cd, filter)
		if err != nil {
			return err
		}
		upd := normalizeMap(update)
		if len(recs) > 0 {
			res.Matched = 1
			changed, err := updateRecord(recs[0], upd)
			if changed {
				res.Modified = 1
			}
			return err
		}
		if !upsert {
			return nil
		}
		doc := bson.M{}
		seedFromFilter(doc, filter)
		if err := applyUpdate(doc, upd, true); err != nil {
			return err
		}
		if err := insert(cd, doc); err != nil {
			return err
		}
		res.Upserted = true
		return nil
	})
	return res, err
}

func (c *Collection) UpdateMany(ctx context.Context, filter bson.M, update bson.M) (document.UpdateResult, error) {
	var res document.UpdateResult
	err := c.store.write(ctx, c.name, OpUpdateMany, func(cd *collectionData) error {
		recs, err := c.matching(cd, filter)
		if err != nil {
			return err
		}
		upd := normalizeMap(update)
		for _, r := range recs {
			res.Matched++
			changed, err := updateRecord(r, upd)
			if err != nil {
				return err
			}
			if changed {
				res.Modified++
			}
		}
		return nil
	})
	return res, err
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, OpDeleteOne, 1)
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	return c.delete(ctx, filter, OpDeleteMany, 0)
}

func (c *Collection) delete(ctx context.Context, filter bson.M, op Op, max int) (int64, error) {
	var deleted int64
	err := c.store.write(ctx, c.name, op, func(cd *collectionData) error {
		recs, err := c.matching(cd, filter)
		if err != nil {
			return err
		}
		for i, r := range recs {
			if max > 0 && i >= max {
				break
			}
			delete(cd.records, idKey(r.doc[IDField]))
			deleted++
		}
		return nil
	})
	return deleted, err
}

func updateRecord(r *record, update bson.M) (bool, error) {
	next := normalizeMap(r.doc)
	if err := applyUpdate(next, update, false); err != nil {
		return false, err
	}
	changed := !valuesEqual(next, r.doc)
	r.doc = next
	return changed, nil
}

// seedFromFilter copies top-level equality conditions into a new document,
// the way an upsert builds its initial body.
func seedFromFilter(doc bson.M, filter bson.M) {
	for k, v := range normalizeMap(filter) {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		if _, isOps := isOperatorDoc(v); isOps {
			continue
		}
		_ = setPath(doc, k, v)
	}
}

func insert(cd *collectionData, doc bson.M) error {
	id, ok := doc[IDField]
	if !ok {
		return fmt.Errorf("document has no %s", IDField)
	}
	key := idKey(id)
	if _, exists := cd.records[key]; exists {
		return fmt.Errorf("duplicate key %s", key)
	}
	cd.nextSeq++
	cd.records[key] = &record{seq: cd.nextSeq, doc: doc}
	return nil
}

func idKey(id any) string {
	return fmt.Sprintf("%T:%v", id, id)
}
