package storage

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/navid-fn/tradedesk/internal/pipeline"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var gameSchema = Schema{Name: Games, Fields: []string{"name", "money_in_exchange"}, Unique: [][]string{{"name"}}}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestMongoCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("returns normalized document", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: oid},
				{Key: "name", Value: "legend"},
			}),
		)
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Create(ctx, Document{"name": "legend", "unknown": 1})
		require.NoError(mt, err)
		assert.Equal(mt, oid.Hex(), doc["id"])
		assert.NotContains(mt, doc, "_id")
		assert.Equal(mt, "legend", doc["name"])
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Create(ctx, Document{"name": "legend"})
		assert.ErrorIs(mt, err, ErrDuplicate)
	})

	mt.Run("other failures are unknown", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Create(ctx, Document{"name": "legend"})
		assert.ErrorIs(mt, err, ErrUnknown)
	})
}

func TestMongoGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("first document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "id", Value: "abc"}, {Key: "name", Value: "legend"}},
		))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Get(ctx, pipeline.Match(pipeline.Eq(pipeline.Field("id"), "abc")))
		require.NoError(mt, err)
		assert.Equal(mt, "legend", doc["name"])
	})

	mt.Run("empty result is not an error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Get(ctx)
		require.NoError(mt, err)
		assert.Nil(mt, doc)
	})
}

func TestMongoUpdate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	oid := primitive.NewObjectID()

	target := func(mt *mtest.T) bson.D {
		return mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{{Key: "_id", Value: oid}})
	}

	mt.Run("modified", func(mt *mtest.T) {
		mt.AddMockResponses(
			target(mt),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: oid},
				{Key: "name", Value: "renamed"},
			}),
		)
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Update(ctx, ByID(oid.Hex()), Document{"name": "renamed"}, OpSet)
		require.NoError(mt, err)
		assert.Equal(mt, "renamed", doc["name"])
		assert.Equal(mt, oid.Hex(), doc["id"])
	})

	mt.Run("patch moves the document out of its filter", func(mt *mtest.T) {
		mt.AddMockResponses(
			target(mt),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: oid},
				{Key: "name", Value: "renamed"},
			}),
		)
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Update(ctx, Where(bson.M{"name": "legend"}), Document{"name": "renamed"}, OpSet)
		require.NoError(mt, err)
		assert.Equal(mt, "renamed", doc["name"])

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 3)
		readBack := started[2].Command.Lookup("filter").Document()
		assert.Equal(mt, oid, readBack.Lookup("_id").ObjectID())
		assert.Nil(mt, readBack.Lookup("name").Value)
	})

	mt.Run("no document matches the filter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Update(ctx, Where(bson.M{"name": "legend"}), Document{"name": "renamed"}, OpSet)
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("deleted between resolve and write", func(mt *mtest.T) {
		mt.AddMockResponses(target(mt), mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Update(ctx, ByID(oid.Hex()), Document{"name": "renamed"}, OpSet)
		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("value already in place", func(mt *mtest.T) {
		mt.AddMockResponses(target(mt), mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Update(ctx, ByID(oid.Hex()), Document{"name": "legend"}, OpSet)
		assert.ErrorIs(mt, err, ErrNoChange)
	})

	mt.Run("malformed id never matches", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Update(ctx, ByID("nope"), Document{"name": "legend"}, OpSet)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	oid := primitive.NewObjectID()

	mt.Run("returns pre-deletion document", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: oid},
				{Key: "name", Value: "legend"},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		doc, err := c.Delete(ctx, ByID(oid.Hex()))
		require.NoError(mt, err)
		assert.Equal(mt, "legend", doc["name"])
	})

	mt.Run("missing document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		_, err := c.Delete(ctx, ByID(oid.Hex()))
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}

func TestMongoList(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("page and total from one facet", func(mt *mtest.T) {
		data := bson.A{}
		for i := 11; i <= 20; i++ {
			data = append(data, bson.D{{Key: "id", Value: primitive.NewObjectID().Hex()}, {Key: "seq", Value: i}})
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "data", Value: data},
			{Key: "info", Value: bson.A{bson.D{{Key: "totalCount", Value: 25}}}},
		}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		res, err := c.List(ctx, ListQuery{Page: 2, PageSize: 10})
		require.NoError(mt, err)
		assert.Equal(mt, 25, res.TotalCount)
		assert.Equal(mt, 3, res.PageCount)
		require.Len(mt, res.Items, 10)
		assert.EqualValues(mt, 11, res.Items[0]["seq"])
	})

	mt.Run("no matches", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "data", Value: bson.A{}},
			{Key: "info", Value: bson.A{}},
		}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		res, err := c.List(ctx, ListQuery{PageSize: 10})
		require.NoError(mt, err)
		assert.Equal(mt, 0, res.TotalCount)
		assert.Empty(mt, res.Items)
	})
}

func TestMongoCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{{Key: "n", Value: 4}}))
		c := NewCollection(mt.Coll, gameSchema, quietLogger())

		n, err := c.Count(context.Background(), pipeline.Match(pipeline.Eq(pipeline.Field("base_type"), "money_in")))
		require.NoError(mt, err)
		assert.Equal(mt, 4, n)
	})
}
