package models

import "time"

// Property is a cash or bank account. Its balance is never stored.
type Property struct {
	ID         string    `bson:"id,omitempty" json:"id"`
	Name       string    `bson:"name" json:"name"`
	Kind       string    `bson:"kind" json:"kind"`
	Account    string    `bson:"account,omitempty" json:"account,omitempty"`
	InitAmount int64     `bson:"init_amount" json:"init_amount"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// PropertySummary is a property with its balance and rollups for the
// current day and month.
type PropertySummary struct {
	Property `bson:",inline"`

	Balance      int64 `bson:"balance" json:"balance"`
	TodayBalance int64 `bson:"today_balance" json:"today_balance"`
	DayCount     int64 `bson:"day_count" json:"day_count"`
	MonthCount   int64 `bson:"month_count" json:"month_count"`
	TotalCount   int64 `bson:"total_count" json:"total_count"`
}

// Stock is an in-game coin account held by a role.
type Stock struct {
	ID         string    `bson:"id,omitempty" json:"id"`
	GameID     string    `bson:"game_id" json:"game_id"`
	RoleName   string    `bson:"role_name" json:"role_name"`
	Kind       string    `bson:"kind,omitempty" json:"kind,omitempty"`
	InitAmount int64     `bson:"init_amount" json:"init_amount"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

type StockSummary struct {
	Stock `bson:",inline"`

	CoinBalance int64 `bson:"coin_balance" json:"coin_balance"`
	TotalCount  int64 `bson:"total_count" json:"total_count"`
}
