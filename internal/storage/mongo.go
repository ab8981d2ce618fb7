package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/navid-fn/tradedesk/internal/pipeline"
)

type mongoCollection struct {
	schema Schema
	coll   *mongo.Collection
	logger *logrus.Entry
}

// NewCollection wraps a driver collection handle. The handle is the only state
// the returned Collection keeps.
func NewCollection(coll *mongo.Collection, schema Schema, logger *logrus.Logger) Collection {
	return &mongoCollection{
		schema: schema,
		coll:   coll,
		logger: logger.WithFields(logrus.Fields{"component": "storage", "collection": schema.Name}),
	}
}

func (c *mongoCollection) Name() string { return c.schema.Name }

func (c *mongoCollection) Create(ctx context.Context, data Document) (doc Document, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "create", start, err) }()

	res, err := c.coll.InsertOne(ctx, c.schema.Project(data))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, c.fail("create", KindDuplicate, err)
		}
		return nil, c.fail("create", KindUnknown, err)
	}
	doc, err = c.findOne(ctx, "create", bson.M{"_id": res.InsertedID})
	if err != nil {
		return nil, c.fail("create", KindUnknown, err)
	}
	return doc, nil
}

func (c *mongoCollection) Get(ctx context.Context, stages ...pipeline.Stage) (doc Document, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "get", start, err) }()

	p := append(pipeline.Pipeline{pipeline.NormalizeID()}, stages...)
	p = append(p, pipeline.Limit(1))

	var docs []Document
	if err := c.aggregate(ctx, p, &docs); err != nil {
		return nil, c.fail("get", KindUnknown, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (c *mongoCollection) Update(ctx context.Context, filter Filter, patch Document, op UpdateOp) (doc Document, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "update", start, err) }()

	f, ok := filter.toBSON()
	if !ok {
		return nil, c.fail("update", KindNotFound, nil)
	}
	patch = c.schema.Project(patch)
	if len(patch) == 0 {
		return nil, c.fail("update", KindNoChange, errors.New("empty patch"))
	}

	// Resolve the target first: the patch may change the very fields the
	// filter selects on, so the read back goes by _id.
	var target struct {
		ID any `bson:"_id"`
	}
	err = c.coll.FindOne(ctx, f, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&target)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, c.fail("update", KindNotFound, nil)
		}
		return nil, c.fail("update", KindUnknown, err)
	}
	byID := bson.M{"_id": target.ID}

	res, err := c.coll.UpdateOne(ctx, byID, bson.D{{Key: string(op), Value: patch}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, c.fail("update", KindDuplicate, err)
		}
		return nil, c.fail("update", KindUnknown, err)
	}
	if res.MatchedCount == 0 {
		return nil, c.fail("update", KindNotFound, nil)
	}
	if res.ModifiedCount == 0 {
		return nil, c.fail("update", KindNoChange, nil)
	}
	return c.findOne(ctx, "update", byID)
}

func (c *mongoCollection) Delete(ctx context.Context, filter Filter) (doc Document, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "delete", start, err) }()

	f, ok := filter.toBSON()
	if !ok {
		return nil, c.fail("delete", KindNotFound, nil)
	}
	doc, err = c.findOne(ctx, "delete", f)
	if err != nil {
		return nil, err
	}
	res, err := c.coll.DeleteOne(ctx, f)
	if err != nil {
		return nil, c.fail("delete", KindUnknown, err)
	}
	if res.DeletedCount == 0 {
		return nil, c.fail("delete", KindNotFound, nil)
	}
	return doc, nil
}

type facetInfo struct {
	TotalCount int `bson:"totalCount"`
}

type facetResult struct {
	Data []Document  `bson:"data"`
	Info []facetInfo `bson:"info"`
}

func (c *mongoCollection) List(ctx context.Context, q ListQuery) (result *PaginatedResult, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "list", start, err) }()

	var rows []facetResult
	if err := c.aggregate(ctx, q.Facet(), &rows); err != nil {
		return nil, c.fail("list", KindUnknown, err)
	}
	if len(rows) == 0 {
		return NewPaginatedResult(nil, 0, q), nil
	}

	total := 0
	if len(rows[0].Info) > 0 {
		total = rows[0].Info[0].TotalCount
	}
	return NewPaginatedResult(rows[0].Data, total, q), nil
}

func (c *mongoCollection) Count(ctx context.Context, stages ...pipeline.Stage) (n int, err error) {
	start := time.Now()
	defer func() { Observe(c.schema.Name, "count", start, err) }()

	p := append(pipeline.Pipeline{pipeline.NormalizeID()}, stages...)
	p = append(p, pipeline.Count("n"))

	var rows []struct {
		N int `bson:"n"`
	}
	if err := c.aggregate(ctx, p, &rows); err != nil {
		return 0, c.fail("count", KindUnknown, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].N, nil
}

func (c *mongoCollection) aggregate(ctx context.Context, p pipeline.Pipeline, out any) error {
	cursor, err := c.coll.Aggregate(ctx, p.Render())
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (c *mongoCollection) findOne(ctx context.Context, op string, filter bson.M) (Document, error) {
	var doc Document
	if err := c.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, c.fail(op, KindNotFound, nil)
		}
		return nil, c.fail(op, KindUnknown, err)
	}
	return normalizeID(doc), nil
}

// fail logs and wraps a failure. Driver errors stay in the log and in Err; they
// never decide the kind on their own.
func (c *mongoCollection) fail(op string, kind Kind, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	entry := c.logger.WithField("op", op)
	if err != nil {
		entry = entry.WithError(err)
	}
	if kind == KindUnknown {
		entry.Error("collection operation failed")
	} else {
		entry.Debugf("collection operation: %s", kind)
	}
	return &Error{Kind: kind, Collection: c.schema.Name, Op: op, Err: err}
}

func normalizeID(doc Document) Document {
	switch id := doc["_id"].(type) {
	case nil:
	case primitive.ObjectID:
		doc["id"] = id.Hex()
	default:
		doc["id"] = fmt.Sprint(id)
	}
	delete(doc, "_id")
	return doc
}
