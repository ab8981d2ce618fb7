package storage

import "strings"

// Collection names.
const (
	Settings    = "setting"
	Games       = "game"
	Members     = "member"
	Players     = "player"
	Properties  = "property"
	Stocks      = "stock"
	Trades      = "trade"
	SplitTrades = "split_trade"

	Activities   = "activity"
	Lotteries    = "lottery"
	LoginRecords = "login_record"
)

// Schema is the field whitelist of a collection. Writes are projected onto
// Fields; anything else is dropped.
type Schema struct {
	Name   string
	Fields []string
	// Unique lists the field sets that carry a unique index.
	Unique [][]string
}

// Project returns the whitelisted subset of data. Dotted keys are accepted
// when their first segment is whitelisted.
func (s Schema) Project(data Document) Document {
	out := make(Document, len(data))
	for k, v := range data {
		if s.Allows(k) {
			out[k] = v
		}
	}
	return out
}

func (s Schema) Allows(key string) bool {
	root, _, _ := strings.Cut(key, ".")
	for _, f := range s.Fields {
		if f == root {
			return true
		}
	}
	return false
}

var tradeFields = []string{
	"game_id", "member_id", "player_id", "property_id", "stock_id",
	"base_type", "money", "charge_fee", "game_coin", "game_coin_fee", "stage_fee",
	"corrections", "details",
	"is_matched", "is_canceled", "is_refund", "no_calculate", "is_split",
	"created_by", "completed_by", "completed_shift", "completed_at",
	"checked_by", "checked_shift", "checked_at",
	"time_at", "order_number", "created_at",
}

// DefaultSchemas is the static registry of every collection the service uses.
func DefaultSchemas() []Schema {
	return []Schema{
		{Name: Settings, Fields: []string{"collection_name", "fields"}, Unique: [][]string{{"collection_name"}}},
		{Name: Games, Fields: []string{"name", "money_in_exchange", "money_out_exchange", "charge_fee", "game_coin_fee", "created_at"}, Unique: [][]string{{"name"}}},
		{Name: Members, Fields: []string{
			"game_id", "nickname", "sex", "accounts", "sock_puppets", "phones",
			"first_communication_time", "first_communication_way", "first_communication_amount",
			"description", "created_at",
		}},
		{Name: Players, Fields: []string{"member_id", "game_id", "name", "created_at"}},
		{Name: Properties, Fields: []string{"name", "kind", "account", "init_amount", "created_at"}},
		{Name: Stocks, Fields: []string{"game_id", "role_name", "kind", "init_amount", "created_at"}},
		{Name: Trades, Fields: tradeFields},
		{Name: SplitTrades, Fields: []string{"main_trade_id", "temp_trade_id", "sub_trade_ids", "total_money", "created_by", "created_at"}},
		{Name: Activities, Fields: []string{
			"game_id", "name", "base_type", "start_time", "end_time", "money_floor", "coin_free", "created_at",
		}},
		{Name: Lotteries, Fields: []string{
			"trade_id", "target_award", "result_award", "block", "created_by", "created_at", "drawn_at",
		}},
		{Name: LoginRecords, Fields: []string{"username", "shift", "login_time"}},
	}
}
