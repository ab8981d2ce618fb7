package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/ledger"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type CreateTradeInput struct {
	GameID     string `json:"game_id"`
	MemberID   string `json:"member_id"`
	PlayerID   string `json:"player_id"`
	PropertyID string `json:"property_id"`
	StockID    string `json:"stock_id"`

	BaseType    models.BaseType    `json:"base_type"`
	Money       int64              `json:"money"`
	ChargeFee   int64              `json:"charge_fee"`
	GameCoin    int64              `json:"game_coin"`
	GameCoinFee int64              `json:"game_coin_fee"`
	Corrections models.Corrections `json:"corrections"`
	Details     map[string]any     `json:"details"`

	// TimeAt back-dates the trade. Defaults to now.
	TimeAt *time.Time `json:"time_at"`

	// Split opens a split trade: Money is collected now and the rest of
	// Split.TotalMoney stays outstanding on a placeholder trade.
	Split *SplitInput `json:"split,omitempty"`
}

type SplitInput struct {
	TotalMoney int64 `json:"total_money"`
}

func (in CreateTradeInput) validate() error {
	if !in.BaseType.Valid() {
		return invalid("base_type %q", in.BaseType)
	}
	if in.PropertyID == "" && in.StockID == "" {
		return invalid("property_id or stock_id is required")
	}
	if in.Money < 0 || in.ChargeFee < 0 || in.GameCoin < 0 || in.GameCoinFee < 0 {
		return invalid("amounts must not be negative")
	}
	if in.Split != nil && in.Split.TotalMoney < in.Money {
		return invalid("split total %d is less than the collected %d", in.Split.TotalMoney, in.Money)
	}
	return nil
}

// TradeQuery filters trade lists. Canceled trades are never listed.
type TradeQuery struct {
	Page
	PropertyID  string          `form:"property_id"`
	StockID     string          `form:"stock_id"`
	MemberID    string          `form:"member_id"`
	PlayerID    string          `form:"player_id"`
	GameID      string          `form:"game_id"`
	BaseType    models.BaseType `form:"base_type"`
	OrderNumber string          `form:"order_number"`
	From        *time.Time      `form:"from"`
	To          *time.Time      `form:"to"`
	Ascending   bool            `form:"ascending"`
}

func (q TradeQuery) filter() (pipeline.Stage, error) {
	if q.BaseType != "" && !q.BaseType.Valid() {
		return nil, invalid("base_type %q", q.BaseType)
	}
	conds := []pipeline.Expr{pipeline.Eq(pipeline.Field("is_canceled"), false)}
	conds = append(conds, pipeline.Equal(map[string]any{
		"property_id": optional(q.PropertyID),
		"stock_id":    optional(q.StockID),
		"member_id":   optional(q.MemberID),
		"player_id":   optional(q.PlayerID),
		"game_id":     optional(q.GameID),
		"base_type":   optional(string(q.BaseType)),
	})...)
	conds = append(conds, pipeline.Fuzzy(map[string]string{"order_number": q.OrderNumber})...)
	conds = append(conds, pipeline.Range("time_at", optionalTime(q.From), optionalTime(q.To)))
	return pipeline.MatchAll(conds...), nil
}

// TradeService runs the trade state machine:
// created -> unmatched/matched -> completed -> checked, with cancel from any
// state but checked.
type TradeService struct {
	trades     storage.Collection
	properties storage.Collection
	stocks     storage.Collection

	fees   FeeTable
	opts   options
	logger *logrus.Entry
	notifier

	splits *SplitService
}

func NewTradeService(p storage.Provider, fees FeeTable, pub events.Publisher, logger *logrus.Logger, opts ...Option) (*TradeService, error) {
	cs, err := collections(p, storage.Trades, storage.Properties, storage.Stocks, storage.SplitTrades, storage.Games)
	if err != nil {
		return nil, err
	}
	entry := logger.WithField("component", "trade_service")
	s := &TradeService{
		trades:     cs[0],
		properties: cs[1],
		stocks:     cs[2],
		fees:       fees,
		opts:       newOptions(opts),
		logger:     entry,
		notifier:   notifier{pub: pub, logger: entry},
	}
	s.splits = &SplitService{trades: s, splits: cs[3], games: cs[4]}
	return s, nil
}

// Splits returns the split workflow bound to this service.
func (s *TradeService) Splits() *SplitService { return s.splits }

// Create records a new trade. With in.Split set it opens a split trade and
// returns its first settlement.
func (s *TradeService) Create(ctx context.Context, p models.Principal, in CreateTradeInput) (*models.Trade, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Split != nil {
		_, main, err := s.splits.open(ctx, p, in)
		return main, err
	}

	t, err := s.newTrade(ctx, p, in)
	if err != nil {
		return nil, err
	}
	created, err := s.insert(ctx, t)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trade_id":     created.ID,
		"order_number": created.OrderNumber,
		"created_by":   p.Username,
	}).Info("trade created")
	s.publish(ctx, s.event(events.TradeCreated, created, p))
	return created, nil
}

// newTrade fills the derived fields of a trade: stage fee, order number,
// match flag, time and creator.
func (s *TradeService) newTrade(ctx context.Context, p models.Principal, in CreateTradeInput) (models.Trade, error) {
	kind, err := s.accountKind(ctx, in)
	if err != nil {
		return models.Trade{}, err
	}
	stageFee, err := s.fees.StageFee(ctx, kind)
	if err != nil {
		return models.Trade{}, err
	}

	now := s.opts.now()
	orderNumber, err := s.orderNumber(ctx, in.BaseType, now)
	if err != nil {
		return models.Trade{}, err
	}
	timeAt := now
	if in.TimeAt != nil {
		timeAt = *in.TimeAt
	}

	return models.Trade{
		GameID:      in.GameID,
		MemberID:    in.MemberID,
		PlayerID:    in.PlayerID,
		PropertyID:  in.PropertyID,
		StockID:     in.StockID,
		BaseType:    in.BaseType,
		Money:       in.Money,
		ChargeFee:   in.ChargeFee,
		GameCoin:    in.GameCoin,
		GameCoinFee: in.GameCoinFee,
		StageFee:    stageFee,
		Corrections: in.Corrections,
		Details:     in.Details,
		IsMatched:   in.BaseType == models.MoneyOut,
		CreatedBy:   p.Username,
		TimeAt:      timeAt,
		OrderNumber: orderNumber,
		CreatedAt:   now,
	}, nil
}

// accountKind reads the kind of the trade's property, or of its stock when
// there is no property.
func (s *TradeService) accountKind(ctx context.Context, in CreateTradeInput) (string, error) {
	if in.PropertyID != "" {
		prop, err := getOne[models.Property](ctx, s.properties, in.PropertyID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", invalid("unknown property %q", in.PropertyID)
		}
		if err != nil {
			return "", err
		}
		return prop.Kind, nil
	}
	stock, err := getOne[models.Stock](ctx, s.stocks, in.StockID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", invalid("unknown stock %q", in.StockID)
	}
	if err != nil {
		return "", err
	}
	return stock.Kind, nil
}

// orderNumber is prefix + YYYYMMDD + the 3 digit count of today's trades in
// the same direction plus one. Count-then-insert is not atomic: concurrent
// creates can draw the same number.
func (s *TradeService) orderNumber(ctx context.Context, bt models.BaseType, now time.Time) (string, error) {
	w := ledger.NewWindow(now, s.opts.loc)
	n, err := s.trades.Count(ctx, pipeline.MatchAll(
		w.InDay("created_at"),
		pipeline.Eq(pipeline.Field("base_type"), string(bt)),
	))
	if err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	return fmt.Sprintf("%s%s%03d", bt.OrderPrefix(), now.In(s.opts.loc).Format("20060102"), n+1), nil
}

func (s *TradeService) insert(ctx context.Context, t models.Trade) (*models.Trade, error) {
	doc, err := storage.Encode(t)
	if err != nil {
		return nil, err
	}
	created, err := s.trades.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	return decode[models.Trade](created)
}

// viewStages decorates trades with their running balance and joined
// references: property, stock, member (with players and game), player, game.
func viewStages() pipeline.Pipeline {
	stages := ledger.RunningBalance(storage.Properties, "property_id", "property")
	return append(stages,
		pipeline.Lookup(storage.Stocks, "stock_id", pipeline.As("stock")),
		pipeline.Lookup(storage.Members, "member_id", pipeline.As("member"), pipeline.Then(
			pipeline.Lookup(storage.Players, "id",
				pipeline.On(pipeline.Eq(pipeline.Field("member_id"), pipeline.Var("id"))),
				pipeline.As("player"),
			),
			pipeline.Lookup(storage.Games, "game_id", pipeline.As("game")),
			pipeline.AddFields(pipeline.Set("game", pipeline.First(pipeline.Field("game")))),
		)),
		pipeline.Lookup(storage.Players, "player_id", pipeline.As("player")),
		pipeline.Lookup(storage.Games, "game_id", pipeline.As("game")),
		pipeline.AddFields(
			pipeline.Set("stock", pipeline.First(pipeline.Field("stock"))),
			pipeline.Set("member", pipeline.First(pipeline.Field("member"))),
			pipeline.Set("player", pipeline.First(pipeline.Field("player"))),
			pipeline.Set("game", pipeline.First(pipeline.Field("game"))),
		),
	)
}

func (s *TradeService) Get(ctx context.Context, id string) (*models.TradeView, error) {
	return getOne[models.TradeView](ctx, s.trades, id, viewStages()...)
}

func (s *TradeService) List(ctx context.Context, q TradeQuery) (*models.PaginatedResult[models.TradeView], error) {
	filter, err := q.filter()
	if err != nil {
		return nil, err
	}
	sort := []pipeline.SortField{pipeline.Desc("time_at"), pipeline.Desc("order_number")}
	if q.Ascending {
		sort = []pipeline.SortField{pipeline.Asc("time_at"), pipeline.Asc("order_number")}
	}
	return listOf[models.TradeView](ctx, s.trades, storage.ListQuery{
		Pipeline: append(pipeline.Pipeline{filter}, viewStages()...),
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     sort,
	})
}

// live loads a trade that may still change: not canceled.
func (s *TradeService) live(ctx context.Context, id string) (*models.Trade, error) {
	t, err := getOne[models.Trade](ctx, s.trades, id)
	if err != nil {
		return nil, err
	}
	if t.IsCanceled {
		return nil, fmt.Errorf("trade %s is canceled: %w", id, ErrInvalidState)
	}
	return t, nil
}

func (s *TradeService) set(ctx context.Context, id string, patch storage.Document) (*models.Trade, error) {
	doc, err := s.trades.Update(ctx, storage.ByID(id), patch, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Trade](doc)
}

// UpdateCorrections replaces the trade's corrections and, when details is
// not nil, its details. Writing the values already stored is NoChange.
func (s *TradeService) UpdateCorrections(ctx context.Context, p models.Principal, id string, c models.Corrections, details map[string]any) (*models.Trade, error) {
	if _, err := s.live(ctx, id); err != nil {
		return nil, err
	}
	corrections, err := storage.Encode(c)
	if err != nil {
		return nil, err
	}
	patch := storage.Document{"corrections": corrections}
	if details != nil {
		patch["details"] = details
	}

	t, err := s.set(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.event(events.TradeCorrected, t, p))
	return t, nil
}

// Complete marks the trade completed by p. The trade keeps its time unless
// resetTime asks for the completion time instead.
func (s *TradeService) Complete(ctx context.Context, p models.Principal, id string, resetTime bool) (*models.Trade, error) {
	if _, err := s.live(ctx, id); err != nil {
		return nil, err
	}
	now := s.opts.now()
	patch := storage.Document{
		"completed_by":    p.Username,
		"completed_shift": p.Shift,
		"completed_at":    now,
	}
	if resetTime {
		patch["time_at"] = now
	}

	t, err := s.set(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.event(events.TradeCompleted, t, p))
	return t, nil
}

// Check marks the trade checked by p. It does not require Complete first.
func (s *TradeService) Check(ctx context.Context, p models.Principal, id string) (*models.Trade, error) {
	t, err := s.live(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CheckedBy != "" {
		return nil, fmt.Errorf("trade %s already checked by %s: %w", id, t.CheckedBy, storage.ErrNoChange)
	}
	t, err = s.set(ctx, id, storage.Document{
		"checked_by":    p.Username,
		"checked_shift": p.Shift,
		"checked_at":    s.opts.now(),
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, s.event(events.TradeChecked, t, p))
	return t, nil
}

// Cancel soft deletes the trade. Canceling a canceled trade succeeds and
// changes nothing; a checked trade cannot be canceled.
func (s *TradeService) Cancel(ctx context.Context, p models.Principal, id string) (*models.Trade, error) {
	t, err := getOne[models.Trade](ctx, s.trades, id)
	if err != nil {
		return nil, err
	}
	if t.State() == models.StateChecked {
		return nil, fmt.Errorf("trade %s is checked: %w", id, ErrInvalidState)
	}

	changed, err := s.cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err = getOne[models.Trade](ctx, s.trades, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, s.event(events.TradeCanceled, t, p))
	}
	return t, nil
}

// cancel sets is_canceled and reports whether it was not set already.
func (s *TradeService) cancel(ctx context.Context, id string) (bool, error) {
	_, err := s.trades.Update(ctx, storage.ByID(id), storage.Document{"is_canceled": true}, storage.OpSet)
	if errors.Is(err, storage.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}

func (s *TradeService) event(typ events.Type, t *models.Trade, p models.Principal) events.TradeEvent {
	return events.TradeEvent{
		Type:        typ,
		TradeID:     t.ID,
		OrderNumber: t.OrderNumber,
		BaseType:    string(t.BaseType),
		Money:       t.Money,
		Actor:       p.Username,
		At:          s.opts.now(),
	}
}
