package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestExprRender(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want any
	}{
		{"field", Field("money"), "$money"},
		{"var", Var("time_at"), "$$time_at"},
		{"plain literal", Lit(5), 5},
		{"dollar literal", Lit("$money"), bson.D{{Key: "$literal", Value: "$money"}}},
		{"eq", Eq(Field("base_type"), "money_in"), bson.D{{Key: "$eq", Value: bson.A{"$base_type", "money_in"}}}},
		{"single sum unwrapped", Sum(Field("trade.final_amount")), bson.D{{Key: "$sum", Value: "$trade.final_amount"}}},
		{"multi sum", Sum(Field("a"), 1), bson.D{{Key: "$sum", Value: bson.A{"$a", 1}}}},
		{"negate", Negate(Field("charge_fee")), bson.D{{Key: "$multiply", Value: bson.A{"$charge_fee", -1}}}},
		{"size of filter", Size(Filter(Field("trade.in_day"), true)), bson.D{{Key: "$size", Value: bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$trade.in_day"},
			{Key: "as", Value: "field"},
			{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{"$$field", true}}}},
		}}}}}},
		{"cond", Cond(Eq(Var("t.in_day"), true), Var("t.final_amount"), 0), bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: bson.D{{Key: "$eq", Value: bson.A{"$$t.in_day", true}}}},
			{Key: "then", Value: "$$t.final_amount"},
			{Key: "else", Value: 0},
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.Render())
		})
	}
}

func TestNormalizeID(t *testing.T) {
	got := NormalizeID().Render()
	want := bson.D{{Key: "$addFields", Value: bson.D{
		{Key: "id", Value: bson.D{{Key: "$toString", Value: "$_id"}}},
		{Key: "_id", Value: "$$REMOVE"},
	}}}
	assert.Equal(t, want, got)
}

func TestLookupDefaultCorrelation(t *testing.T) {
	l := Lookup("property", "property_id")

	assert.Equal(t, "property", l.As)
	require.Len(t, l.Correlation(), 1)
	assert.Equal(t, Eq(Field("id"), Var("property_id")), l.Correlation()[0])

	sub := l.SubPipeline()
	require.Len(t, sub, 2)
	assert.Equal(t, KindAddFields, sub[0].Kind(), "joined documents are normalized first")
	assert.Equal(t, KindMatch, sub[1].Kind())
}

func TestLookupRenderNestsThreeLevels(t *testing.T) {
	// trade -> member -> player -> game
	stage := Lookup("member", "member_id",
		Then(Lookup("player", "id",
			On(Eq(Field("member_id"), Var("id"))),
			Then(Lookup("game", "game_id")),
		)),
	)

	rendered := stage.Render()
	body := rendered[0].Value.(bson.D)
	assert.Equal(t, "member", lookupValue(body, "from"))
	assert.Equal(t, bson.D{{Key: "member_id", Value: "$member_id"}}, lookupValue(body, "let"))

	depth := 0
	current := body
	for current != nil {
		depth++
		var next bson.D
		for _, st := range lookupValue(current, "pipeline").(bson.A) {
			d := st.(bson.D)
			if d[0].Key == "$lookup" {
				next = d[0].Value.(bson.D)
			}
		}
		current = next
	}
	assert.Equal(t, 3, depth)
}

// lookupValue works on both the top-level bson.D and the rendered
// sub-pipeline, which mongo.Pipeline stores as []bson.D.
func lookupValue(d bson.D, key string) any {
	for _, e := range d {
		if e.Key != key {
			continue
		}
		switch v := e.Value.(type) {
		case mongo.Pipeline:
			out := make(bson.A, 0, len(v))
			for _, s := range v {
				out = append(out, s)
			}
			return out
		default:
			return v
		}
	}
	return nil
}

func TestLookupExtraBindings(t *testing.T) {
	l := Lookup("trade", "account_id",
		Let("time_at", Field("time_at")),
		On(Eq(Field("is_canceled"), false), Lte(Field("time_at"), Var("time_at"))),
		As("history"),
	)

	bindings := l.Bindings()
	require.Len(t, bindings, 2)
	assert.Equal(t, "account_id", bindings[0].Name)
	assert.Equal(t, "time_at", bindings[1].Name)
	assert.Equal(t, "history", l.As)
	assert.Len(t, l.Correlation(), 2)
}

func TestProjectAlwaysIncludesID(t *testing.T) {
	got := Project([]string{"name", "id"}, Set("balance", Sum(Field("init_amount"), 1))).Render()
	want := bson.D{{Key: "$project", Value: bson.D{
		{Key: "id", Value: true},
		{Key: "name", Value: true},
		{Key: "balance", Value: bson.D{{Key: "$sum", Value: bson.A{"$init_amount", 1}}}},
	}}}
	assert.Equal(t, want, got)
}

func TestMatchAll(t *testing.T) {
	assert.Equal(t, Match(Lit(true)), MatchAll())
	assert.Equal(t, Match(Eq(Field("a"), 1)), MatchAll(nil, Eq(Field("a"), 1)))
	assert.Equal(t, Match(And(Eq(Field("a"), 1), Eq(Field("b"), 2))), MatchAll(Eq(Field("a"), 1), nil, Eq(Field("b"), 2)))
}

func TestPipelineFilters(t *testing.T) {
	p := Pipeline{
		Match(Eq(Field("is_canceled"), false)),
		Lookup("property", "property_id"),
		Match(Eq(Field("base_type"), "money_in")),
		Sort(Desc("time_at")),
	}
	filters := p.Filters()
	kinds := make([]StageKind, 0, len(filters))
	for _, f := range filters {
		kinds = append(kinds, f.Kind())
	}
	assert.Equal(t, []StageKind{KindMatch, KindLookup, KindMatch}, kinds)

	enrichOnly := Pipeline{Match(Eq(Field("a"), 1)), Sort(Asc("a")), Lookup("property", "property_id")}
	assert.Equal(t, Pipeline{Match(Eq(Field("a"), 1))}, enrichOnly.Filters())
	assert.Empty(t, Pipeline{Lookup("property", "property_id")}.Filters())
}

func TestFacetFillsEmptyBranch(t *testing.T) {
	got := Facet(NewBranch("data"), NewBranch("info", Count("totalCount"))).Render()
	body := got[0].Value.(bson.D)
	require.Len(t, body, 2)
	assert.Len(t, body[0].Value, 1)
	assert.Equal(t, "info", body[1].Key)
}

func TestSortDirections(t *testing.T) {
	got := Sort(Desc("time_at"), Asc("order_number")).Render()
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{
		{Key: "time_at", Value: -1},
		{Key: "order_number", Value: 1},
	}}}, got)
}

func TestWhereHelpers(t *testing.T) {
	conds := Equal(map[string]any{"game_id": "g1", "member_id": nil, "base_type": "money_in"})
	require.Len(t, conds, 2)
	assert.Equal(t, Eq(Field("base_type"), "money_in"), conds[0])
	assert.Equal(t, Eq(Field("game_id"), "g1"), conds[1])

	fuzzy := Fuzzy(map[string]string{"nickname": "a.b", "phones": ""})
	require.Len(t, fuzzy, 1)
	assert.Equal(t, `a\.b`, fuzzy[0].(RegexExpr).Pattern)

	assert.Nil(t, FuzzyAny("accounts", ""))
	assert.NotNil(t, FuzzyAny("accounts", "123"))

	assert.Nil(t, Range("time_at", nil, nil))
	assert.Equal(t, Gte(Field("time_at"), 1), Range("time_at", 1, nil))
	assert.Equal(t, And(Gte(Field("time_at"), 1), Lt(Field("time_at"), 2)), Range("time_at", 1, 2))
	assert.Nil(t, AtLeast("x", nil))
	assert.Equal(t, Lte(Field("x"), 3), AtMost("x", 3))
}
