package service

import (
	"context"
	"fmt"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type LotteryInput struct {
	TradeID     string `json:"trade_id"`
	TargetAward string `json:"target_award"`
}

// LotteryService issues prize draws for trades. The customer draws through a
// public link, so a result can be written once only.
type LotteryService struct {
	lotteries storage.Collection
	trades    storage.Collection
	settings  storage.Collection
	opts      options
}

func NewLotteryService(p storage.Provider, opts ...Option) (*LotteryService, error) {
	cs, err := collections(p, storage.Lotteries, storage.Trades, storage.Settings)
	if err != nil {
		return nil, err
	}
	return &LotteryService{lotteries: cs[0], trades: cs[1], settings: cs[2], opts: newOptions(opts)}, nil
}

// Create snapshots the award block from the award settings onto the new
// lottery.
func (s *LotteryService) Create(ctx context.Context, p models.Principal, in LotteryInput) (*models.Lottery, error) {
	if in.TradeID == "" || in.TargetAward == "" {
		return nil, invalid("trade_id and target_award are required")
	}
	if _, err := getOne[models.Trade](ctx, s.trades, in.TradeID); err != nil {
		return nil, err
	}
	doc, err := s.settings.Get(ctx, byCollection(SettingsAward))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(s.settings.Name(), SettingsAward)
	}
	setting, err := decode[models.Setting](doc)
	if err != nil {
		return nil, err
	}
	block, ok := setting.Fields["block"]
	if !ok {
		return nil, notFound(s.settings.Name(), SettingsAward+".block")
	}
	return create[models.Lottery](ctx, s.lotteries, models.Lottery{
		TradeID:     in.TradeID,
		TargetAward: in.TargetAward,
		ResultAward: models.PendingAward,
		Block:       block,
		CreatedBy:   p.Username,
		CreatedAt:   s.opts.now(),
	})
}

func (s *LotteryService) Get(ctx context.Context, id string) (*models.Lottery, error) {
	return getOne[models.Lottery](ctx, s.lotteries, id)
}

// Draw records the award the customer drew.
func (s *LotteryService) Draw(ctx context.Context, id, award string) (*models.Lottery, error) {
	if award == "" || award == models.PendingAward {
		return nil, invalid("result_award is required")
	}
	lottery, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lottery.Drawn() {
		return nil, fmt.Errorf("lottery %s already drawn: %w", id, ErrInvalidState)
	}
	doc, err := s.lotteries.Update(ctx, storage.ByID(id), storage.Document{
		"result_award": award,
		"drawn_at":     s.opts.now(),
	}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Lottery](doc)
}
