// Package memstore is an in-memory storage.Collection backend. It executes the
// pipeline DSL directly with the document store's aggregation semantics for the
// subset the service uses, so workflows and ledger projections run unchanged
// in tests and with STORAGE_DRIVER=memory.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// Store holds every collection so lookups can join across them.
type Store struct {
	mu          sync.RWMutex
	data        map[string][]storage.Document
	collections map[string]*collection
	logger      *logrus.Logger
}

func New(schemas []storage.Schema, logger *logrus.Logger) *Store {
	s := &Store{
		data:        make(map[string][]storage.Document, len(schemas)),
		collections: make(map[string]*collection, len(schemas)),
		logger:      logger,
	}
	for _, schema := range schemas {
		s.collections[schema.Name] = &collection{
			store:  s,
			schema: schema,
			logger: logger.WithFields(logrus.Fields{"component": "memstore", "collection": schema.Name}),
		}
	}
	return s
}

func (s *Store) Collection(name string) (storage.Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown collection %q", name)
	}
	return c, nil
}

type collection struct {
	store  *Store
	schema storage.Schema
	logger *logrus.Entry
}

func (c *collection) Name() string { return c.schema.Name }

func (c *collection) fail(op string, kind storage.Kind, err error) error {
	entry := c.logger.WithField("op", op)
	if err != nil {
		entry = entry.WithError(err)
	}
	if kind == storage.KindUnknown {
		entry.Error("collection operation failed")
	} else {
		entry.Debugf("collection operation: %s", kind)
	}
	return &storage.Error{Kind: kind, Collection: c.schema.Name, Op: op, Err: err}
}

func (c *collection) Create(ctx context.Context, data storage.Document) (doc storage.Document, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "create", start, err) }()
	if err := ctx.Err(); err != nil {
		return nil, c.fail("create", storage.KindUnknown, err)
	}

	stored := canonicalMap(c.schema.Project(data))
	stored["_id"] = primitive.NewObjectID()

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if c.violatesUnique(stored, -1) {
		return nil, c.fail("create", storage.KindDuplicate, errors.New("unique constraint violated"))
	}
	c.store.data[c.schema.Name] = append(c.store.data[c.schema.Name], stored)
	return normalized(stored), nil
}

func (c *collection) Get(ctx context.Context, stages ...pipeline.Stage) (doc storage.Document, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "get", start, err) }()

	p := append(pipeline.Pipeline{pipeline.NormalizeID()}, stages...)
	p = append(p, pipeline.Limit(1))
	docs, err := c.aggregate(ctx, p)
	if err != nil {
		return nil, c.fail("get", storage.KindUnknown, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *collection) Update(ctx context.Context, filter storage.Filter, patch storage.Document, op storage.UpdateOp) (doc storage.Document, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "update", start, err) }()
	if err := ctx.Err(); err != nil {
		return nil, c.fail("update", storage.KindUnknown, err)
	}

	patch = c.schema.Project(patch)
	if len(patch) == 0 {
		return nil, c.fail("update", storage.KindNoChange, errors.New("empty patch"))
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	idx := c.find(filter)
	if idx < 0 {
		return nil, c.fail("update", storage.KindNotFound, nil)
	}
	current := c.store.data[c.schema.Name][idx]
	next := cloneDoc(current)
	if err := apply(next, patch, op); err != nil {
		return nil, c.fail("update", storage.KindUnknown, err)
	}
	if equal(current, next) {
		return nil, c.fail("update", storage.KindNoChange, nil)
	}
	if c.violatesUnique(next, idx) {
		return nil, c.fail("update", storage.KindDuplicate, errors.New("unique constraint violated"))
	}
	c.store.data[c.schema.Name][idx] = next
	return normalized(next), nil
}

func (c *collection) Delete(ctx context.Context, filter storage.Filter) (doc storage.Document, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "delete", start, err) }()
	if err := ctx.Err(); err != nil {
		return nil, c.fail("delete", storage.KindUnknown, err)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	idx := c.find(filter)
	if idx < 0 {
		return nil, c.fail("delete", storage.KindNotFound, nil)
	}
	docs := c.store.data[c.schema.Name]
	deleted := docs[idx]
	c.store.data[c.schema.Name] = append(docs[:idx:idx], docs[idx+1:]...)
	return normalized(deleted), nil
}

func (c *collection) List(ctx context.Context, q storage.ListQuery) (result *storage.PaginatedResult, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "list", start, err) }()

	rows, err := c.aggregate(ctx, q.Facet())
	if err != nil {
		return nil, c.fail("list", storage.KindUnknown, err)
	}
	if len(rows) == 0 {
		return storage.NewPaginatedResult(nil, 0, q), nil
	}

	data, _ := rows[0]["data"].([]any)
	items := make([]storage.Document, 0, len(data))
	for _, d := range data {
		if doc, ok := d.(storage.Document); ok {
			items = append(items, doc)
		}
	}
	total := 0
	if info, _ := rows[0]["info"].([]any); len(info) > 0 {
		if head, ok := info[0].(storage.Document); ok {
			n, _ := head["totalCount"].(int64)
			total = int(n)
		}
	}
	return storage.NewPaginatedResult(items, total, q), nil
}

func (c *collection) Count(ctx context.Context, stages ...pipeline.Stage) (n int, err error) {
	start := time.Now()
	defer func() { storage.Observe(c.schema.Name, "count", start, err) }()

	p := append(pipeline.Pipeline{pipeline.NormalizeID()}, stages...)
	p = append(p, pipeline.Count("n"))
	rows, err := c.aggregate(ctx, p)
	if err != nil {
		return 0, c.fail("count", storage.KindUnknown, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, _ := rows[0]["n"].(int64)
	return int(count), nil
}

func (c *collection) aggregate(ctx context.Context, p pipeline.Pipeline) ([]storage.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	x := executor{data: c.store.data}
	return x.run(p, x.source(c.schema.Name), vars{})
}

// find returns the index of the first document matching filter, or -1.
// Callers hold the lock.
func (c *collection) find(filter storage.Filter) int {
	docs := c.store.data[c.schema.Name]
	if id, ok := filter.ID(); ok {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return -1
		}
		for i, d := range docs {
			if d["_id"] == oid {
				return i
			}
		}
		return -1
	}
	for i, d := range docs {
		if matches(d, filter.Raw()) {
			return i
		}
	}
	return -1
}

func (c *collection) violatesUnique(doc storage.Document, self int) bool {
	for _, fields := range c.schema.Unique {
		for i, other := range c.store.data[c.schema.Name] {
			if i == self {
				continue
			}
			same := true
			for _, f := range fields {
				a, _ := lookupPath(doc, splitPath(f))
				b, _ := lookupPath(other, splitPath(f))
				if !equal(a, b) {
					same = false
					break
				}
			}
			if same {
				return true
			}
		}
	}
	return false
}

// matches evaluates a raw equality filter. A scalar condition on an array
// field matches when any element is equal.
func matches(doc storage.Document, filter storage.Document) bool {
	for k, want := range filter {
		want = canonical(want)
		if k == "id" {
			s, _ := want.(string)
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil || doc["_id"] != oid {
				return false
			}
			continue
		}
		got, _ := lookupPath(doc, splitPath(k))
		if arr, ok := got.([]any); ok {
			if _, wantArr := want.([]any); !wantArr {
				found := false
				for _, el := range arr {
					if equal(el, want) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
				continue
			}
		}
		if !equal(got, want) {
			return false
		}
	}
	return true
}

func apply(doc storage.Document, patch storage.Document, op storage.UpdateOp) error {
	for k, v := range patch {
		path := splitPath(k)
		v = canonical(v)
		switch op {
		case storage.OpSet:
			setPath(doc, path, v)
		case storage.OpPush:
			current, _ := lookupPath(doc, path)
			arr, ok := current.([]any)
			if current != nil && !ok {
				return fmt.Errorf("$push on non-array field %s", k)
			}
			setPath(doc, path, append(arr, v))
		case storage.OpPull:
			current, _ := lookupPath(doc, path)
			arr, ok := current.([]any)
			if !ok {
				continue
			}
			kept := make([]any, 0, len(arr))
			for _, el := range arr {
				if !equal(el, v) {
					kept = append(kept, el)
				}
			}
			setPath(doc, path, kept)
		default:
			return fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return nil
}

func normalized(d storage.Document) storage.Document {
	out := cloneDoc(d)
	if oid, ok := out["_id"].(primitive.ObjectID); ok {
		out["id"] = oid.Hex()
	}
	delete(out, "_id")
	return out
}
