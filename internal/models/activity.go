package models

import "time"

// Activity is a time-boxed promotion on a game: trades of BaseType of at
// least MoneyFloor earn CoinFree extra coin while it runs.
type Activity struct {
	ID         string    `bson:"id,omitempty" json:"id"`
	GameID     string    `bson:"game_id" json:"game_id"`
	Name       string    `bson:"name" json:"name"`
	BaseType   BaseType  `bson:"base_type" json:"base_type"`
	StartTime  time.Time `bson:"start_time" json:"start_time"`
	EndTime    time.Time `bson:"end_time" json:"end_time"`
	MoneyFloor int64     `bson:"money_floor" json:"money_floor"`
	CoinFree   int64     `bson:"coin_free" json:"coin_free"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Running reports whether at falls inside the activity, both ends included.
func (a Activity) Running(at time.Time) bool {
	return !at.Before(a.StartTime) && !at.After(a.EndTime)
}

type ActivityView struct {
	Activity `bson:",inline"`

	Game *Game `bson:"game,omitempty" json:"game,omitempty"`
}

// PendingAward is the result of a lottery that has not been drawn.
const PendingAward = "--"

// Lottery is a prize draw attached to a trade. Block is the award table
// copied from the award settings when the lottery is created, so later
// edits to the settings leave issued lotteries alone.
type Lottery struct {
	ID          string     `bson:"id,omitempty" json:"id"`
	TradeID     string     `bson:"trade_id" json:"trade_id"`
	TargetAward string     `bson:"target_award" json:"target_award"`
	ResultAward string     `bson:"result_award" json:"result_award"`
	Block       any        `bson:"block" json:"block"`
	CreatedBy   string     `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	DrawnAt     *time.Time `bson:"drawn_at,omitempty" json:"drawn_at,omitempty"`
}

func (l Lottery) Drawn() bool { return l.ResultAward != PendingAward }

// LoginRecord is written each time an operator opens the desk.
type LoginRecord struct {
	ID        string    `bson:"id,omitempty" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Shift     string    `bson:"shift" json:"shift"`
	LoginTime time.Time `bson:"login_time" json:"login_time"`
}
