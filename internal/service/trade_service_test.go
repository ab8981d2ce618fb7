package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/storage"
)

func TestCreateTradeOrderNumbers(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 1000)

	sale := func() *models.Trade {
		return f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 100})
	}
	buy := func() *models.Trade {
		return f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyOut, Money: 50})
	}

	assert.Equal(t, "S20260315001", sale().OrderNumber)
	assert.Equal(t, "S20260315002", sale().OrderNumber)
	assert.Equal(t, "B20260315001", buy().OrderNumber)

	f.now = t0.Add(24 * time.Hour)
	assert.Equal(t, "S20260316001", sale().OrderNumber)
}

func TestCreateTradeDerivedFields(t *testing.T) {
	f := newFixture(t)
	cash := f.property(t, "cash", 0)
	bank := f.property(t, "bank", 0)

	in := f.trade(t, CreateTradeInput{PropertyID: cash, BaseType: models.MoneyIn, Money: 100})
	assert.EqualValues(t, 5, in.StageFee)
	assert.False(t, in.IsMatched)
	assert.Equal(t, models.StateUnmatched, in.State())
	assert.Equal(t, "sara", in.CreatedBy)
	assert.True(t, t0.Equal(in.TimeAt))

	out := f.trade(t, CreateTradeInput{PropertyID: bank, BaseType: models.MoneyOut, Money: 100})
	assert.Zero(t, out.StageFee)
	assert.True(t, out.IsMatched)
	assert.Equal(t, models.StateMatched, out.State())

	back := t0.Add(-48 * time.Hour)
	dated := f.trade(t, CreateTradeInput{PropertyID: bank, BaseType: models.MoneyIn, Money: 1, TimeAt: &back})
	assert.True(t, back.Equal(dated.TimeAt))
	assert.Equal(t, "S20260315002", dated.OrderNumber)

	assert.Equal(t, []events.Type{events.TradeCreated, events.TradeCreated, events.TradeCreated}, f.pub.types())
}

func TestCreateTradeValidation(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 0)

	tests := []struct {
		name string
		in   CreateTradeInput
	}{
		{"unknown base type", CreateTradeInput{PropertyID: pid, BaseType: "swap", Money: 1}},
		{"no account", CreateTradeInput{BaseType: models.MoneyIn, Money: 1}},
		{"negative money", CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: -1}},
		{"unknown property", CreateTradeInput{PropertyID: "000000000000000000000000", BaseType: models.MoneyIn, Money: 1}},
		{"split below collected", CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 10, Split: &SplitInput{TotalMoney: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.trades.Create(f.ctx, operator, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, f.pub.types())
}

func TestCreateTradeOnStockOnly(t *testing.T) {
	f := newFixture(t)
	stock, err := f.accounts.CreateStock(f.ctx, StockInput{RoleName: "main", Kind: "cash", InitAmount: 1000})
	require.NoError(t, err)

	tr := f.trade(t, CreateTradeInput{StockID: stock.ID, BaseType: models.MoneyOut, GameCoin: 300, GameCoinFee: 10})
	assert.EqualValues(t, 5, tr.StageFee)

	summary, err := f.accounts.GetStock(f.ctx, stock.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1290, summary.CoinBalance)
	assert.EqualValues(t, 1, summary.TotalCount)
}

func TestGetAndListTrades(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 1000)
	member, err := f.members.Create(f.ctx, MemberInput{Nickname: "ali"})
	require.NoError(t, err)

	first := f.trade(t, CreateTradeInput{PropertyID: pid, MemberID: member.ID, BaseType: models.MoneyIn, Money: 500, ChargeFee: 10})
	f.now = t0.Add(time.Hour)
	second := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyOut, Money: 200})

	view, err := f.trades.Get(f.ctx, first.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 490, view.FinalAmount)
	assert.EqualValues(t, 1490, view.Balance)
	assert.EqualValues(t, 510, view.RealIn)
	require.NotNil(t, view.Property)
	assert.Equal(t, pid, view.Property.ID)
	require.NotNil(t, view.Member)
	assert.Equal(t, "ali", view.Member.Nickname)

	res, err := f.trades.List(f.ctx, TradeQuery{PropertyID: pid})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, second.ID, res.Items[0].ID)
	assert.EqualValues(t, 1290, res.Items[0].Balance)

	res, err = f.trades.List(f.ctx, TradeQuery{PropertyID: pid, Ascending: true, Page: Page{Page: 1, PageSize: 1}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, first.ID, res.Items[0].ID)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 2, res.TotalCount)

	from := t0.Add(30 * time.Minute)
	res, err = f.trades.List(f.ctx, TradeQuery{From: &from})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, second.ID, res.Items[0].ID)

	res, err = f.trades.List(f.ctx, TradeQuery{BaseType: models.MoneyIn, OrderNumber: "0315"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, first.ID, res.Items[0].ID)

	_, err = f.trades.List(f.ctx, TradeQuery{BaseType: "swap"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetTradeNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.trades.Get(f.ctx, "000000000000000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.trades.Get(f.ctx, "not-an-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.trades.Complete(f.ctx, operator, "000000000000000000000000", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 1000)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})
	assert.EqualValues(t, 1300, f.balance(t, pid))

	canceled, err := f.trades.Cancel(f.ctx, operator, tr.ID)
	require.NoError(t, err)
	assert.True(t, canceled.IsCanceled)
	assert.Equal(t, models.StateCanceled, canceled.State())

	again, err := f.trades.Cancel(f.ctx, operator, tr.ID)
	require.NoError(t, err)
	assert.True(t, again.IsCanceled)

	assert.Equal(t, []events.Type{events.TradeCreated, events.TradeCanceled}, f.pub.types())
	assert.EqualValues(t, 1000, f.balance(t, pid))

	res, err := f.trades.List(f.ctx, TradeQuery{PropertyID: pid})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.TotalCount)
}

func TestCanceledTradeRejectsChanges(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 0)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})
	_, err := f.trades.Cancel(f.ctx, operator, tr.ID)
	require.NoError(t, err)

	_, err = f.trades.Complete(f.ctx, operator, tr.ID, false)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.trades.Check(f.ctx, operator, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.trades.UpdateCorrections(f.ctx, operator, tr.ID, models.Corrections{MoneyCorrection: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCheckedTradeCannotBeCanceled(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 0)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})

	checked, err := f.trades.Check(f.ctx, models.Principal{Username: "reza", Shift: "night"}, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "reza", checked.CheckedBy)
	assert.Equal(t, "night", checked.CheckedShift)
	assert.Equal(t, models.StateChecked, checked.State())

	_, err = f.trades.Cancel(f.ctx, operator, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, f.rawTrade(t, tr.ID).IsCanceled)
}

func TestCheckTwiceKeepsFirstChecker(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 0)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})

	first, err := f.trades.Check(f.ctx, models.Principal{Username: "reza", Shift: "night"}, tr.ID)
	require.NoError(t, err)

	f.now = t0.Add(time.Hour)
	_, err = f.trades.Check(f.ctx, operator, tr.ID)
	assert.ErrorIs(t, err, storage.ErrNoChange)

	raw := f.rawTrade(t, tr.ID)
	assert.Equal(t, "reza", raw.CheckedBy)
	assert.Equal(t, "night", raw.CheckedShift)
	require.NotNil(t, raw.CheckedAt)
	assert.True(t, first.CheckedAt.Equal(*raw.CheckedAt))
}

func TestCompleteTrade(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 0)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})

	f.now = t0.Add(time.Hour)
	kept, err := f.trades.Complete(f.ctx, operator, tr.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "sara", kept.CompletedBy)
	assert.Equal(t, "morning", kept.CompletedShift)
	require.NotNil(t, kept.CompletedAt)
	assert.True(t, f.now.Equal(*kept.CompletedAt))
	assert.True(t, t0.Equal(kept.TimeAt))
	assert.Equal(t, models.StateCompleted, kept.State())

	f.now = t0.Add(2 * time.Hour)
	reset, err := f.trades.Complete(f.ctx, operator, tr.ID, true)
	require.NoError(t, err)
	assert.True(t, f.now.Equal(reset.TimeAt))
}

func TestUpdateCorrections(t *testing.T) {
	f := newFixture(t)
	pid := f.property(t, "bank", 1000)
	tr := f.trade(t, CreateTradeInput{PropertyID: pid, BaseType: models.MoneyIn, Money: 300})

	c := models.Corrections{MoneyCorrection: 10, DiffBankFee: 2}
	updated, err := f.trades.UpdateCorrections(f.ctx, operator, tr.ID, c, map[string]any{"note": "late"})
	require.NoError(t, err)
	assert.Equal(t, c, updated.Corrections)
	assert.Equal(t, "late", updated.Details["note"])
	assert.EqualValues(t, 1288, f.balance(t, pid))

	_, err = f.trades.UpdateCorrections(f.ctx, operator, tr.ID, c, nil)
	assert.ErrorIs(t, err, storage.ErrNoChange)

	assert.Equal(t, []events.Type{events.TradeCreated, events.TradeCorrected}, f.pub.types())
}
