package memstore

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	. "github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(storage.DefaultSchemas(), l)
}

func mustCollection(t *testing.T, s *Store, name string) storage.Collection {
	t.Helper()
	c, err := s.Collection(name)
	require.NoError(t, err)
	return c
}

func TestCreateThenGet(t *testing.T) {
	ctx := context.Background()
	games := mustCollection(t, newStore(t), storage.Games)

	created, err := games.Create(ctx, storage.Document{"name": "legend", "money_in_exchange": 1.5, "bogus": true})
	require.NoError(t, err)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.NotContains(t, created, "bogus")
	assert.NotContains(t, created, "_id")

	got, err := games.Get(ctx, Match(Eq(Field("id"), id)))
	require.NoError(t, err)
	assert.Equal(t, storage.Document{"id": id, "name": "legend", "money_in_exchange": 1.5}, got)

	missing, err := games.Get(ctx, Match(Eq(Field("id"), "nope")))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUniqueConstraint(t *testing.T) {
	ctx := context.Background()
	games := mustCollection(t, newStore(t), storage.Games)

	_, err := games.Create(ctx, storage.Document{"name": "legend"})
	require.NoError(t, err)
	other, err := games.Create(ctx, storage.Document{"name": "other"})
	require.NoError(t, err)

	_, err = games.Create(ctx, storage.Document{"name": "legend"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = games.Update(ctx, storage.ByID(other["id"].(string)), storage.Document{"name": "legend"}, storage.OpSet)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUpdateOutcomes(t *testing.T) {
	ctx := context.Background()
	members := mustCollection(t, newStore(t), storage.Members)

	m, err := members.Create(ctx, storage.Document{"nickname": "neo", "phones": []string{"0911"}})
	require.NoError(t, err)
	id := m["id"].(string)

	updated, err := members.Update(ctx, storage.ByID(id), storage.Document{"nickname": "trinity"}, storage.OpSet)
	require.NoError(t, err)
	assert.Equal(t, "trinity", updated["nickname"])

	_, err = members.Update(ctx, storage.ByID(id), storage.Document{"nickname": "trinity"}, storage.OpSet)
	assert.ErrorIs(t, err, storage.ErrNoChange)

	_, err = members.Update(ctx, storage.ByID("64b7f0c2a1b2c3d4e5f60718"), storage.Document{"nickname": "x"}, storage.OpSet)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	pushed, err := members.Update(ctx, storage.Where(bson.M{"id": id}), storage.Document{"phones": "0912"}, storage.OpPush)
	require.NoError(t, err)
	assert.Equal(t, []any{"0911", "0912"}, pushed["phones"])

	pulled, err := members.Update(ctx, storage.ByID(id), storage.Document{"phones": "0911"}, storage.OpPull)
	require.NoError(t, err)
	assert.Equal(t, []any{"0912"}, pulled["phones"])

	_, err = members.Update(ctx, storage.ByID(id), storage.Document{"phones": "0911"}, storage.OpPull)
	assert.ErrorIs(t, err, storage.ErrNoChange)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	players := mustCollection(t, newStore(t), storage.Players)

	p, err := players.Create(ctx, storage.Document{"name": "p1"})
	require.NoError(t, err)

	deleted, err := players.Delete(ctx, storage.ByID(p["id"].(string)))
	require.NoError(t, err)
	assert.Equal(t, "p1", deleted["name"])

	_, err = players.Delete(ctx, storage.ByID(p["id"].(string)))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	trades := mustCollection(t, store, storage.Trades)

	for i := 1; i <= 30; i++ {
		_, err := trades.Create(ctx, storage.Document{"money": i, "is_canceled": i > 25})
		require.NoError(t, err)
	}

	q := storage.ListQuery{
		Pipeline: Pipeline{Match(Eq(Field("is_canceled"), false))},
		Page:     2,
		PageSize: 10,
		Sort:     []SortField{Asc("money")},
	}
	res, err := trades.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 25, res.TotalCount)
	assert.Equal(t, 3, res.PageCount)
	require.Len(t, res.Items, 10)
	for i, item := range res.Items {
		assert.EqualValues(t, 11+i, item["money"])
		assert.NotEmpty(t, item["id"])
	}

	q.PageSize = 0
	all, err := trades.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, all.PageCount)
	assert.Len(t, all.Items, 25)

	q.PageSize = 10
	q.Pipeline = Pipeline{Match(Eq(Field("money"), -1))}
	none, err := trades.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 0, none.TotalCount)
	assert.Empty(t, none.Items)
}

func TestLookupThreeLevels(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	games := mustCollection(t, store, storage.Games)
	members := mustCollection(t, store, storage.Members)
	players := mustCollection(t, store, storage.Players)
	trades := mustCollection(t, store, storage.Trades)

	game, err := games.Create(ctx, storage.Document{"name": "legend"})
	require.NoError(t, err)
	member, err := members.Create(ctx, storage.Document{"nickname": "neo"})
	require.NoError(t, err)
	_, err = players.Create(ctx, storage.Document{"name": "p1", "member_id": member["id"], "game_id": game["id"]})
	require.NoError(t, err)
	trade, err := trades.Create(ctx, storage.Document{"member_id": member["id"], "money": 10})
	require.NoError(t, err)

	got, err := trades.Get(ctx,
		Match(Eq(Field("id"), trade["id"])),
		Lookup(storage.Members, "member_id",
			Then(Lookup(storage.Players, "id",
				On(Eq(Field("member_id"), Var("id"))),
				Then(Lookup(storage.Games, "game_id")),
			)),
		),
	)
	require.NoError(t, err)

	memberArr := got["member"].([]any)
	require.Len(t, memberArr, 1)
	playerArr := memberArr[0].(storage.Document)["player"].([]any)
	require.Len(t, playerArr, 1)
	gameArr := playerArr[0].(storage.Document)["game"].([]any)
	require.Len(t, gameArr, 1)
	assert.Equal(t, "legend", gameArr[0].(storage.Document)["name"])
}

func TestAggregationExpressions(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	properties := mustCollection(t, store, storage.Properties)
	trades := mustCollection(t, store, storage.Trades)

	prop, err := properties.Create(ctx, storage.Document{"name": "bank", "init_amount": 100})
	require.NoError(t, err)
	for _, money := range []int{5, 7, 11} {
		_, err := trades.Create(ctx, storage.Document{"property_id": prop["id"], "money": money, "is_matched": money > 5})
		require.NoError(t, err)
	}

	got, err := properties.Get(ctx,
		Lookup(storage.Trades, "id", On(Eq(Field("property_id"), Var("id")))),
		Project([]string{"name"},
			Set("total", Sum(Field("init_amount"), Sum(Field("trade.money")))),
			Set("matched", Size(Filter(Field("trade.is_matched"), true))),
			Set("first", IfNull(First(Field("trade.money")), 0)),
			Set("missing", IfNull(Field("nope"), 0)),
			Set("doubled", Map(Field("trade.money"), "m", Multiply(Var("m"), 2))),
			Set("gap", Subtract(Field("nope"), 1)),
		),
	)
	require.NoError(t, err)
	assert.EqualValues(t, 123, got["total"])
	assert.EqualValues(t, 2, got["matched"])
	assert.EqualValues(t, 5, got["first"])
	assert.EqualValues(t, 0, got["missing"])
	assert.Equal(t, []any{int64(10), int64(14), int64(22)}, got["doubled"])
	assert.Nil(t, got["gap"])
	assert.Equal(t, "bank", got["name"])
}

func TestGroupAndCount(t *testing.T) {
	ctx := context.Background()
	trades := mustCollection(t, newStore(t), storage.Trades)

	for _, bt := range []string{"money_in", "money_out", "money_in"} {
		_, err := trades.Create(ctx, storage.Document{"base_type": bt, "money": 10})
		require.NoError(t, err)
	}

	n, err := trades.Count(ctx, Match(Eq(Field("base_type"), "money_in")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = trades.Count(ctx, Match(Eq(Field("base_type"), "refund")))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := trades.List(ctx, storage.ListQuery{Pipeline: Pipeline{
		Group(Field("base_type"), Accumulate("total", AccSum, Field("money")), Accumulate("n", AccSum, 1)),
		Sort(Asc("_id")),
	}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "money_in", res.Items[0]["_id"])
	assert.EqualValues(t, 20, res.Items[0]["total"])
	assert.EqualValues(t, 2, res.Items[0]["n"])
}

func TestFuzzyHelpers(t *testing.T) {
	ctx := context.Background()
	members := mustCollection(t, newStore(t), storage.Members)

	_, err := members.Create(ctx, storage.Document{"nickname": "Neo.One", "accounts": []string{"111-222"}})
	require.NoError(t, err)
	_, err = members.Create(ctx, storage.Document{"nickname": "NeoXOne"})
	require.NoError(t, err)

	res, err := members.List(ctx, storage.ListQuery{Pipeline: Pipeline{MatchAll(Fuzzy(map[string]string{"nickname": "Neo."})...)}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)

	res, err = members.List(ctx, storage.ListQuery{Pipeline: Pipeline{MatchAll(FuzzyAny("accounts", "222"))}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
}
