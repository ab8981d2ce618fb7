package models

import "time"

// BaseType is the direction of a trade.
type BaseType string

const (
	// MoneyIn is a sale of game coin; the account receives money.
	MoneyIn BaseType = "money_in"
	// MoneyOut is a purchase of game coin; the account pays money.
	MoneyOut BaseType = "money_out"
)

func (b BaseType) Valid() bool { return b == MoneyIn || b == MoneyOut }

// OrderPrefix is "B" for purchases and "S" for sales.
func (b BaseType) OrderPrefix() string {
	if b == MoneyOut {
		return "B"
	}
	return "S"
}

// Corrections are signed adjustments applied on top of a trade's recorded
// amounts. They never overwrite the original fields.
type Corrections struct {
	MoneyCorrection    int64 `bson:"money_correction" json:"money_correction"`
	GameCoinCorrection int64 `bson:"game_coin_correction" json:"game_coin_correction"`
	DiffBankFee        int64 `bson:"diff_bank_fee" json:"diff_bank_fee"`
}

// Trade is one signed ledger entry against a property (cash) account and,
// optionally, a stock (coin) account.
type Trade struct {
	ID         string `bson:"id,omitempty" json:"id"`
	GameID     string `bson:"game_id" json:"game_id"`
	MemberID   string `bson:"member_id" json:"member_id"`
	PlayerID   string `bson:"player_id" json:"player_id"`
	PropertyID string `bson:"property_id" json:"property_id"`
	StockID    string `bson:"stock_id" json:"stock_id"`

	BaseType    BaseType       `bson:"base_type" json:"base_type"`
	Money       int64          `bson:"money" json:"money"`
	ChargeFee   int64          `bson:"charge_fee" json:"charge_fee"`
	GameCoin    int64          `bson:"game_coin" json:"game_coin"`
	GameCoinFee int64          `bson:"game_coin_fee" json:"game_coin_fee"`
	StageFee    int64          `bson:"stage_fee" json:"stage_fee"`
	Corrections Corrections    `bson:"corrections" json:"corrections"`
	Details     map[string]any `bson:"details,omitempty" json:"details,omitempty"`

	IsMatched   bool `bson:"is_matched" json:"is_matched"`
	IsCanceled  bool `bson:"is_canceled" json:"is_canceled"`
	IsRefund    bool `bson:"is_refund" json:"is_refund"`
	NoCalculate bool `bson:"no_calculate" json:"no_calculate"`
	IsSplit     bool `bson:"is_split" json:"is_split"`

	CreatedBy      string     `bson:"created_by" json:"created_by"`
	CompletedBy    string     `bson:"completed_by" json:"completed_by"`
	CompletedShift string     `bson:"completed_shift" json:"completed_shift"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CheckedBy      string     `bson:"checked_by" json:"checked_by"`
	CheckedShift   string     `bson:"checked_shift" json:"checked_shift"`
	CheckedAt      *time.Time `bson:"checked_at,omitempty" json:"checked_at,omitempty"`

	TimeAt      time.Time `bson:"time_at" json:"time_at"`
	OrderNumber string    `bson:"order_number" json:"order_number"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

type TradeState string

const (
	StateCreated   TradeState = "created"
	StateUnmatched TradeState = "unmatched"
	StateMatched   TradeState = "matched"
	StateCompleted TradeState = "completed"
	StateChecked   TradeState = "checked"
	StateCanceled  TradeState = "canceled"
)

// State derives the workflow state from the stored flags. Canceled wins over
// everything; a checked trade reports Checked whether or not it was completed.
func (t Trade) State() TradeState {
	switch {
	case t.IsCanceled:
		return StateCanceled
	case t.CheckedBy != "":
		return StateChecked
	case t.CompletedBy != "":
		return StateCompleted
	case t.ID == "":
		return StateCreated
	case t.IsMatched:
		return StateMatched
	default:
		return StateUnmatched
	}
}

// TradeView is a trade with its ledger projection and joined references.
type TradeView struct {
	Trade `bson:",inline"`

	FinalAmount int64 `bson:"final_amount" json:"final_amount"`
	Balance     int64 `bson:"balance" json:"balance"`
	RealIn      int64 `bson:"real_in" json:"real_in"`

	Property *Property `bson:"property,omitempty" json:"property,omitempty"`
	Stock    *Stock    `bson:"stock,omitempty" json:"stock,omitempty"`
	Member   *Member   `bson:"member,omitempty" json:"member,omitempty"`
	Player   *Player   `bson:"player,omitempty" json:"player,omitempty"`
	Game     *Game     `bson:"game,omitempty" json:"game,omitempty"`
}

// SplitTrade tracks the partial settlement of one logical trade. TempTradeID
// is the placeholder for the unsettled remainder and is empty once closed.
type SplitTrade struct {
	ID          string    `bson:"id,omitempty" json:"id"`
	MainTradeID string    `bson:"main_trade_id" json:"main_trade_id"`
	TempTradeID string    `bson:"temp_trade_id" json:"temp_trade_id"`
	SubTradeIDs []string  `bson:"sub_trade_ids" json:"sub_trade_ids"`
	TotalMoney  int64     `bson:"total_money" json:"total_money"`
	CreatedBy   string    `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

func (s SplitTrade) Open() bool { return s.TempTradeID != "" }

// SplitTradeView is an open split with its settled total and display fields.
type SplitTradeView struct {
	SplitTrade `bson:",inline"`

	Date         string `bson:"date" json:"date"`
	MemberName   string `bson:"member_name" json:"member_name"`
	PlayerName   string `bson:"player_name" json:"player_name"`
	PropertyID   string `bson:"property_id" json:"property_id"`
	PropertyName string `bson:"property_name" json:"property_name"`
	PropertyKind string `bson:"property_kind" json:"property_kind"`
	AlreadyMoney int64  `bson:"already_money" json:"already_money"`
}
