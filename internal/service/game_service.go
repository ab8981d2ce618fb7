package service

import (
	"context"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type GameInput struct {
	Name             string  `json:"name"`
	MoneyInExchange  float64 `json:"money_in_exchange"`
	MoneyOutExchange float64 `json:"money_out_exchange"`
	ChargeFee        int64   `json:"charge_fee"`
	GameCoinFee      float64 `json:"game_coin_fee"`
}

func (in GameInput) validate() error {
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.MoneyInExchange < 0 || in.MoneyOutExchange < 0 || in.GameCoinFee < 0 {
		return invalid("rates must not be negative")
	}
	return nil
}

type GameService struct {
	games storage.Collection
	opts  options
}

func NewGameService(p storage.Provider, opts ...Option) (*GameService, error) {
	games, err := p.Collection(storage.Games)
	if err != nil {
		return nil, err
	}
	return &GameService{games: games, opts: newOptions(opts)}, nil
}

// Create fails with storage.ErrDuplicate when the name is taken.
func (s *GameService) Create(ctx context.Context, in GameInput) (*models.Game, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return create[models.Game](ctx, s.games, models.Game{
		Name:             in.Name,
		MoneyInExchange:  in.MoneyInExchange,
		MoneyOutExchange: in.MoneyOutExchange,
		ChargeFee:        in.ChargeFee,
		GameCoinFee:      in.GameCoinFee,
		CreatedAt:        s.opts.now(),
	})
}

func (s *GameService) Get(ctx context.Context, id string) (*models.Game, error) {
	return getOne[models.Game](ctx, s.games, id)
}

func (s *GameService) List(ctx context.Context, page Page) (*models.PaginatedResult[models.Game], error) {
	return listOf[models.Game](ctx, s.games, storage.ListQuery{
		Page:     page.Page,
		PageSize: page.PageSize,
		Sort:     []pipeline.SortField{pipeline.Asc("name")},
	})
}

func (s *GameService) Update(ctx context.Context, id string, in GameInput) (*models.Game, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	doc, err := s.games.Update(ctx, storage.ByID(id), storage.Document{
		"name":               in.Name,
		"money_in_exchange":  in.MoneyInExchange,
		"money_out_exchange": in.MoneyOutExchange,
		"charge_fee":         in.ChargeFee,
		"game_coin_fee":      in.GameCoinFee,
	}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Game](doc)
}
