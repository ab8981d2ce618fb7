package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// placeholderOffset keeps a placeholder one tick after the settlement it
// follows, so it never precedes it in a running balance.
const placeholderOffset = time.Second

// SplitService settles one logical trade in several payments. While a split
// is open the unsettled remainder sits on a placeholder trade, and
// sum(sub trade money) + placeholder money == total money.
type SplitService struct {
	trades *TradeService
	splits storage.Collection
	games  storage.Collection
}

// Open records the first settlement of a split trade. Money is collected now;
// when it is less than Split.TotalMoney a placeholder carries the rest.
func (s *SplitService) Open(ctx context.Context, p models.Principal, in CreateTradeInput) (*models.SplitTrade, error) {
	if in.Split == nil {
		return nil, invalid("split total is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	split, _, err := s.open(ctx, p, in)
	return split, err
}

func (s *SplitService) open(ctx context.Context, p models.Principal, in CreateTradeInput) (*models.SplitTrade, *models.Trade, error) {
	ts := s.trades
	t, err := ts.newTrade(ctx, p, in)
	if err != nil {
		return nil, nil, err
	}
	t.IsSplit = true
	main, err := ts.insert(ctx, t)
	if err != nil {
		return nil, nil, err
	}

	var tempID string
	if rest := in.Split.TotalMoney - in.Money; rest > 0 {
		temp, err := ts.insert(ctx, derived(*main, rest, main.TimeAt.Add(placeholderOffset), main.CreatedAt))
		if err != nil {
			return nil, nil, err
		}
		tempID = temp.ID
	}

	doc, err := storage.Encode(models.SplitTrade{
		MainTradeID: main.ID,
		TempTradeID: tempID,
		SubTradeIDs: []string{main.ID},
		TotalMoney:  in.Split.TotalMoney,
		CreatedBy:   p.Username,
		CreatedAt:   main.CreatedAt,
	})
	if err != nil {
		return nil, nil, err
	}
	created, err := s.splits.Create(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	split, err := decode[models.SplitTrade](created)
	if err != nil {
		return nil, nil, err
	}

	ts.logger.WithFields(logrus.Fields{
		"split_id":      split.ID,
		"main_trade_id": main.ID,
		"total_money":   split.TotalMoney,
	}).Info("split trade opened")
	ts.publish(ctx, s.event(events.SplitOpened, split, main, p))
	return split, main, nil
}

// derived is a trade on the same references as main carrying only money.
func derived(main models.Trade, money int64, at, now time.Time) models.Trade {
	return models.Trade{
		GameID:      main.GameID,
		MemberID:    main.MemberID,
		PlayerID:    main.PlayerID,
		PropertyID:  main.PropertyID,
		StockID:     main.StockID,
		BaseType:    main.BaseType,
		Money:       money,
		Details:     main.Details,
		IsMatched:   main.IsMatched,
		IsSplit:     true,
		TimeAt:      at,
		OrderNumber: main.OrderNumber,
		CreatedAt:   now,
	}
}

// openSplit loads an open split and its current placeholder.
func (s *SplitService) openSplit(ctx context.Context, id string) (*models.SplitTrade, *models.Trade, error) {
	split, err := getOne[models.SplitTrade](ctx, s.splits, id)
	if err != nil {
		return nil, nil, err
	}
	if !split.Open() {
		return nil, nil, fmt.Errorf("split %s: %w", id, ErrSplitClosed)
	}
	temp, err := getOne[models.Trade](ctx, s.trades.trades, split.TempTradeID)
	if err != nil {
		return nil, nil, err
	}
	return split, temp, nil
}

// coinFor converts settled money to game coin at the game's sell rate, both
// rounded up.
func coinFor(money int64, g *models.Game) (coin, fee int64) {
	if g == nil {
		return 0, 0
	}
	c := decimal.NewFromInt(money).Mul(decimal.NewFromFloat(g.MoneyInExchange)).Ceil()
	f := c.Mul(decimal.NewFromFloat(g.GameCoinFee)).Ceil()
	return c.IntPart(), f.IntPart()
}

// Settle records a payment of money against an open split. The old
// placeholder is canceled and, unless finish is set or nothing is left, a new
// one carries the remainder. Finishing early writes the remainder off.
func (s *SplitService) Settle(ctx context.Context, p models.Principal, id string, money int64, finish bool) (*models.SplitTrade, error) {
	if money <= 0 {
		return nil, invalid("settled money must be positive")
	}
	split, temp, err := s.openSplit(ctx, id)
	if err != nil {
		return nil, err
	}
	if money > temp.Money {
		return nil, invalid("settling %d but only %d is outstanding", money, temp.Money)
	}

	ts := s.trades
	main, err := getOne[models.TradeView](ctx, ts.trades, split.MainTradeID,
		pipeline.Lookup(storage.Games, "game_id", pipeline.As("game")),
		pipeline.AddFields(pipeline.Set("game", pipeline.First(pipeline.Field("game")))),
	)
	if err != nil {
		return nil, err
	}

	now := ts.opts.now()
	t := derived(main.Trade, money, now, now)
	t.GameCoin, t.GameCoinFee = coinFor(money, main.Game)
	t.CreatedBy = p.Username
	t.CompletedBy = p.Username
	t.CompletedShift = p.Shift
	t.CompletedAt = &now
	sub, err := ts.insert(ctx, t)
	if err != nil {
		return nil, err
	}

	if _, err := ts.cancel(ctx, temp.ID); err != nil {
		return nil, err
	}

	var tempID string
	if rest := temp.Money - money; rest > 0 && !finish {
		next, err := ts.insert(ctx, derived(main.Trade, rest, now.Add(placeholderOffset), now))
		if err != nil {
			return nil, err
		}
		tempID = next.ID
	}

	if _, err := s.splits.Update(ctx, storage.ByID(id), storage.Document{"temp_trade_id": tempID}, storage.OpSet); err != nil {
		return nil, err
	}
	doc, err := s.splits.Update(ctx, storage.ByID(id), storage.Document{"sub_trade_ids": sub.ID}, storage.OpPush)
	if err != nil {
		return nil, err
	}
	updated, err := decode[models.SplitTrade](doc)
	if err != nil {
		return nil, err
	}

	ts.logger.WithFields(logrus.Fields{
		"split_id":    id,
		"sub_trade":   sub.ID,
		"money":       money,
		"outstanding": temp.Money - money,
		"closed":      !updated.Open(),
	}).Info("split trade settled")
	ts.publish(ctx, s.event(events.SplitSettled, updated, sub, p))
	return updated, nil
}

// Refund closes an open split by paying refund back. A catch-up trade in the
// split's direction recognizes the refunded money, a money_out trade one tick
// later pays it out, and the placeholder is canceled. Both new trades are
// marked no_calculate.
func (s *SplitService) Refund(ctx context.Context, p models.Principal, id string, refund int64) (*models.SplitTrade, error) {
	if refund <= 0 {
		return nil, invalid("refund must be positive")
	}
	split, temp, err := s.openSplit(ctx, id)
	if err != nil {
		return nil, err
	}
	if refund > temp.Money {
		return nil, invalid("refunding %d but only %d is outstanding", refund, temp.Money)
	}

	ts := s.trades
	main, err := getOne[models.Trade](ctx, ts.trades, split.MainTradeID)
	if err != nil {
		return nil, err
	}

	now := ts.opts.now()
	catchUp := derived(*main, refund, now, now)
	catchUp.CreatedBy = main.CreatedBy
	catchUp.CompletedBy = main.CreatedBy
	catchUp.NoCalculate = true
	if _, err := ts.insert(ctx, catchUp); err != nil {
		return nil, err
	}

	reversal := derived(*main, refund, now.Add(placeholderOffset), now)
	reversal.BaseType = models.MoneyOut
	reversal.IsMatched = true
	reversal.CreatedBy = p.Username
	reversal.CompletedBy = main.CreatedBy
	reversal.IsRefund = true
	reversal.NoCalculate = true
	refunded, err := ts.insert(ctx, reversal)
	if err != nil {
		return nil, err
	}

	if _, err := ts.cancel(ctx, temp.ID); err != nil {
		return nil, err
	}
	doc, err := s.splits.Update(ctx, storage.ByID(id), storage.Document{"temp_trade_id": ""}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	updated, err := decode[models.SplitTrade](doc)
	if err != nil {
		return nil, err
	}

	ts.logger.WithFields(logrus.Fields{"split_id": id, "refund": refund}).Info("split trade refunded")
	ts.publish(ctx, s.event(events.SplitRefunded, updated, refunded, p))
	return updated, nil
}

// viewStages joins the main trade with its property and member (with
// players), and sums the settled money.
func (s *SplitService) viewStages() pipeline.Pipeline {
	first := func(path string) pipeline.Expr { return pipeline.First(pipeline.Field(path)) }
	return pipeline.Pipeline{
		pipeline.Lookup(storage.Trades, "main_trade_id", pipeline.As("main_trade"), pipeline.Then(
			pipeline.Lookup(storage.Properties, "property_id", pipeline.As("property")),
			pipeline.Lookup(storage.Members, "member_id", pipeline.As("member"), pipeline.Then(
				pipeline.Lookup(storage.Players, "id",
					pipeline.On(pipeline.Eq(pipeline.Field("member_id"), pipeline.Var("id"))),
					pipeline.As("player"),
				),
				pipeline.Project([]string{"nickname"}, pipeline.Set("player_name", first("player.name"))),
			)),
			pipeline.Project([]string{"time_at"},
				pipeline.Set("member_name", first("member.nickname")),
				pipeline.Set("player_name", first("member.player_name")),
				pipeline.Set("property_id", first("property.id")),
				pipeline.Set("property_name", first("property.name")),
				pipeline.Set("property_kind", first("property.kind")),
			),
		)),
		pipeline.Lookup(storage.Trades, "sub_trade_ids",
			pipeline.On(pipeline.In(pipeline.Field("id"), pipeline.Var("sub_trade_ids"))),
			pipeline.As("sub_trades"),
		),
		pipeline.Project(
			[]string{"main_trade_id", "temp_trade_id", "sub_trade_ids", "total_money", "created_by", "created_at"},
			pipeline.Set("date", pipeline.DateToString("%Y-%m-%d", first("main_trade.time_at"), s.trades.opts.timezone())),
			pipeline.Set("member_name", first("main_trade.member_name")),
			pipeline.Set("player_name", first("main_trade.player_name")),
			pipeline.Set("property_id", first("main_trade.property_id")),
			pipeline.Set("property_name", first("main_trade.property_name")),
			pipeline.Set("property_kind", first("main_trade.property_kind")),
			pipeline.Set("already_money", pipeline.Sum(pipeline.Field("sub_trades.money"))),
		),
	}
}

func (s *SplitService) Get(ctx context.Context, id string) (*models.SplitTradeView, error) {
	return getOne[models.SplitTradeView](ctx, s.splits, id, s.viewStages()...)
}

// List pages through the open splits, newest first.
func (s *SplitService) List(ctx context.Context, page Page) (*models.PaginatedResult[models.SplitTradeView], error) {
	return listOf[models.SplitTradeView](ctx, s.splits, storage.ListQuery{
		Pipeline: append(pipeline.Pipeline{
			pipeline.Match(pipeline.Ne(pipeline.Field("temp_trade_id"), "")),
		}, s.viewStages()...),
		Page:     page.Page,
		PageSize: page.PageSize,
		Sort:     []pipeline.SortField{pipeline.Desc("created_at")},
	})
}

func (s *SplitService) event(typ events.Type, split *models.SplitTrade, t *models.Trade, p models.Principal) events.TradeEvent {
	e := s.trades.event(typ, t, p)
	e.SplitID = split.ID
	return e
}
