// Package ledger composes the pipeline stages that derive balances from
// trades. Balances are never stored: an account's running balance as of a
// trade is its initial amount plus the final amount of every non-canceled
// trade on the account at or before that trade's time.
package ledger

import (
	"time"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// Window is the current day and month, both half-open.
type Window struct {
	DayStart, DayEnd     time.Time
	MonthStart, MonthEnd time.Time
}

// NewWindow returns the day and month containing now, measured in loc.
func NewWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return Window{
		DayStart:   day,
		DayEnd:     day.AddDate(0, 0, 1),
		MonthStart: month,
		MonthEnd:   month.AddDate(0, 1, 0),
	}
}

func (w Window) InDay(field string) pipeline.Expr { return pipeline.Range(field, w.DayStart, w.DayEnd) }
func (w Window) InMonth(field string) pipeline.Expr {
	return pipeline.Range(field, w.MonthStart, w.MonthEnd)
}

// zero reads a numeric field, treating a missing one as 0.
func zero(path string) pipeline.Expr { return pipeline.IfNull(pipeline.Field(path), 0) }

// FinalAmount is the signed effect of a trade on its property's balance:
// +money for money_in, -money for money_out, minus the charge fee, the stage
// fee and the money corrections.
func FinalAmount() pipeline.Expr {
	return pipeline.Sum(
		pipeline.Cond(pipeline.Eq(pipeline.Field("base_type"), string(models.MoneyIn)), zero("money"), pipeline.Negate(zero("money"))),
		pipeline.Negate(zero("charge_fee")),
		pipeline.Negate(zero("stage_fee")),
		pipeline.Negate(zero("corrections.money_correction")),
		pipeline.Negate(zero("corrections.diff_bank_fee")),
	)
}

// RealIn is what was physically received: money + charge fee - stage fee.
// Corrections are left out on purpose.
func RealIn() pipeline.Expr {
	return pipeline.Subtract(pipeline.Sum(zero("money"), zero("charge_fee")), zero("stage_fee"))
}

// CoinAmount is the signed effect of a trade on its stock's coin balance.
// Selling coin (money_in) draws on the stock, buying coin adds to it.
func CoinAmount() pipeline.Expr {
	return pipeline.Sum(
		pipeline.Cond(pipeline.Eq(pipeline.Field("base_type"), string(models.MoneyIn)), pipeline.Negate(zero("game_coin")), zero("game_coin")),
		pipeline.Negate(zero("game_coin_fee")),
		pipeline.Negate(zero("corrections.game_coin_correction")),
	)
}

func notCanceled() pipeline.Expr { return pipeline.Eq(pipeline.Field("is_canceled"), false) }

const historyField = "history"

// TradeHistory joins every non-canceled trade on the same account whose time
// is at or before the current trade's, projected to its final amount.
// Trades sharing a timestamp all see each other.
func TradeHistory(accountField string) pipeline.LookupStage {
	return pipeline.Lookup(storage.Trades, accountField,
		pipeline.Let("time_at", pipeline.Field("time_at")),
		pipeline.On(
			notCanceled(),
			pipeline.Eq(pipeline.Field(accountField), pipeline.Var(accountField)),
			pipeline.Lte(pipeline.Field("time_at"), pipeline.Var("time_at")),
		),
		pipeline.Then(pipeline.Project(nil, pipeline.Set("final_amount", FinalAmount()))),
		pipeline.As(historyField),
	)
}

// RunningBalance decorates trades with final_amount, real_in and balance, and
// replaces accountAs with the joined account document. A missing account or
// an empty history count as 0.
func RunningBalance(accountCollection, accountField, accountAs string) pipeline.Pipeline {
	return pipeline.Pipeline{
		TradeHistory(accountField),
		pipeline.Lookup(accountCollection, accountField, pipeline.As(accountAs)),
		pipeline.AddFields(
			pipeline.Set("final_amount", FinalAmount()),
			pipeline.Set("real_in", RealIn()),
			pipeline.Set("balance", pipeline.Sum(
				pipeline.IfNull(pipeline.First(pipeline.Field(accountAs+".init_amount")), 0),
				pipeline.Sum(pipeline.Field(historyField+".final_amount")),
			)),
			pipeline.Set(accountAs, pipeline.First(pipeline.Field(accountAs))),
		),
		pipeline.DropFields(historyField),
	}
}

const tradesField = "trades"

func accountTrades(accountField string, project ...pipeline.Computed) pipeline.LookupStage {
	return pipeline.Lookup(storage.Trades, "id",
		pipeline.On(notCanceled(), pipeline.Eq(pipeline.Field(accountField), pipeline.Var("id"))),
		pipeline.Then(pipeline.Project(nil, project...)),
		pipeline.As(tradesField),
	)
}

func totalCount() pipeline.Expr {
	return pipeline.Size(pipeline.IfNull(pipeline.Field(tradesField), pipeline.Lit([]any{})))
}

// AccountSummary decorates accounts with balance, today_balance, day_count,
// month_count and total_count. Run it on the property collection.
func AccountSummary(w Window, accountField string) pipeline.Pipeline {
	return pipeline.Pipeline{
		accountTrades(accountField,
			pipeline.Set("final_amount", FinalAmount()),
			pipeline.Set("in_day", w.InDay("time_at")),
			pipeline.Set("in_month", w.InMonth("time_at")),
		),
		pipeline.AddFields(
			pipeline.Set("balance", pipeline.Sum(zero("init_amount"), pipeline.Sum(pipeline.Field(tradesField+".final_amount")))),
			pipeline.Set("today_balance", pipeline.Sum(pipeline.Map(pipeline.Field(tradesField), "t",
				pipeline.Cond(pipeline.Eq(pipeline.Var("t.in_day"), true), pipeline.Var("t.final_amount"), 0),
			))),
			pipeline.Set("day_count", pipeline.Size(pipeline.Filter(pipeline.Field(tradesField+".in_day"), true))),
			pipeline.Set("month_count", pipeline.Size(pipeline.Filter(pipeline.Field(tradesField+".in_month"), true))),
			pipeline.Set("total_count", totalCount()),
		),
		pipeline.DropFields(tradesField),
	}
}

// StockSummary decorates stocks with coin_balance and total_count.
func StockSummary() pipeline.Pipeline {
	return pipeline.Pipeline{
		accountTrades("stock_id", pipeline.Set("coin_amount", CoinAmount())),
		pipeline.AddFields(
			pipeline.Set("coin_balance", pipeline.Sum(zero("init_amount"), pipeline.Sum(pipeline.Field(tradesField+".coin_amount")))),
			pipeline.Set("total_count", totalCount()),
		),
		pipeline.DropFields(tradesField),
	}
}

// BalanceAt decorates accounts with their balance as of at, inclusive.
func BalanceAt(accountField string, at time.Time) pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Lookup(storage.Trades, "id",
			pipeline.On(notCanceled(), pipeline.Eq(pipeline.Field(accountField), pipeline.Var("id")), pipeline.Lte(pipeline.Field("time_at"), at)),
			pipeline.Then(pipeline.Project(nil, pipeline.Set("final_amount", FinalAmount()))),
			pipeline.As(tradesField),
		),
		pipeline.AddFields(pipeline.Set("balance", pipeline.Sum(zero("init_amount"), pipeline.Sum(pipeline.Field(tradesField+".final_amount"))))),
		pipeline.DropFields(tradesField),
	}
}
