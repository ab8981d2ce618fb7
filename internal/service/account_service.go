package service

import (
	"context"
	"time"

	"github.com/navid-fn/tradedesk/internal/ledger"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type PropertyInput struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Account    string `json:"account"`
	InitAmount int64  `json:"init_amount"`
}

type PropertyQuery struct {
	Page
	Kind string `form:"kind"`
	Name string `form:"name"`
}

type StockInput struct {
	GameID     string `json:"game_id"`
	RoleName   string `json:"role_name"`
	Kind       string `json:"kind"`
	InitAmount int64  `json:"init_amount"`
}

type StockQuery struct {
	Page
	GameID string `form:"game_id"`
}

// AccountService manages properties (cash accounts) and stocks (coin
// accounts). Balances are derived from trades on every read.
type AccountService struct {
	properties storage.Collection
	stocks     storage.Collection
	opts       options
}

func NewAccountService(p storage.Provider, opts ...Option) (*AccountService, error) {
	cs, err := collections(p, storage.Properties, storage.Stocks)
	if err != nil {
		return nil, err
	}
	return &AccountService{properties: cs[0], stocks: cs[1], opts: newOptions(opts)}, nil
}

func create[T any](ctx context.Context, c storage.Collection, v any) (*T, error) {
	doc, err := storage.Encode(v)
	if err != nil {
		return nil, err
	}
	created, err := c.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	return decode[T](created)
}

func (s *AccountService) CreateProperty(ctx context.Context, in PropertyInput) (*models.Property, error) {
	if in.Name == "" || in.Kind == "" {
		return nil, invalid("name and kind are required")
	}
	return create[models.Property](ctx, s.properties, models.Property{
		Name:       in.Name,
		Kind:       in.Kind,
		Account:    in.Account,
		InitAmount: in.InitAmount,
		CreatedAt:  s.opts.now(),
	})
}

func (s *AccountService) summary() pipeline.Pipeline {
	return ledger.AccountSummary(ledger.NewWindow(s.opts.now(), s.opts.loc), "property_id")
}

func (s *AccountService) GetProperty(ctx context.Context, id string) (*models.PropertySummary, error) {
	return getOne[models.PropertySummary](ctx, s.properties, id, s.summary()...)
}

// ListProperties returns properties with their balance, today's balance and
// trade counts.
func (s *AccountService) ListProperties(ctx context.Context, q PropertyQuery) (*models.PaginatedResult[models.PropertySummary], error) {
	conds := pipeline.Equal(map[string]any{"kind": optional(q.Kind)})
	conds = append(conds, pipeline.Fuzzy(map[string]string{"name": q.Name})...)
	return listOf[models.PropertySummary](ctx, s.properties, storage.ListQuery{
		Pipeline: append(pipeline.Pipeline{pipeline.MatchAll(conds...)}, s.summary()...),
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     []pipeline.SortField{pipeline.Asc("created_at")},
	})
}

// PropertyBalanceAt is the property's balance including every trade at or
// before at.
func (s *AccountService) PropertyBalanceAt(ctx context.Context, id string, at time.Time) (int64, error) {
	doc, err := s.properties.Get(ctx, append(pipeline.Pipeline{matchID(id)}, ledger.BalanceAt("property_id", at)...)...)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, notFound(s.properties.Name(), id)
	}
	balance, _ := toInt64(doc["balance"])
	return balance, nil
}

// UpdatePropertyInitAmount corrects the opening balance. Every derived
// balance moves with it.
func (s *AccountService) UpdatePropertyInitAmount(ctx context.Context, id string, amount int64) (*models.Property, error) {
	doc, err := s.properties.Update(ctx, storage.ByID(id), storage.Document{"init_amount": amount}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Property](doc)
}

func (s *AccountService) CreateStock(ctx context.Context, in StockInput) (*models.Stock, error) {
	if in.RoleName == "" {
		return nil, invalid("role_name is required")
	}
	return create[models.Stock](ctx, s.stocks, models.Stock{
		GameID:     in.GameID,
		RoleName:   in.RoleName,
		Kind:       in.Kind,
		InitAmount: in.InitAmount,
		CreatedAt:  s.opts.now(),
	})
}

func (s *AccountService) GetStock(ctx context.Context, id string) (*models.StockSummary, error) {
	return getOne[models.StockSummary](ctx, s.stocks, id, ledger.StockSummary()...)
}

// ListStocks returns stocks with their game coin balance.
func (s *AccountService) ListStocks(ctx context.Context, q StockQuery) (*models.PaginatedResult[models.StockSummary], error) {
	return listOf[models.StockSummary](ctx, s.stocks, storage.ListQuery{
		Pipeline: append(pipeline.Pipeline{
			pipeline.MatchAll(pipeline.Equal(map[string]any{"game_id": optional(q.GameID)})...),
		}, ledger.StockSummary()...),
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     []pipeline.SortField{pipeline.Asc("created_at")},
	})
}

func (s *AccountService) UpdateStockInitAmount(ctx context.Context, id string, amount int64) (*models.Stock, error) {
	doc, err := s.stocks.Update(ctx, storage.ByID(id), storage.Document{"init_amount": amount}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Stock](doc)
}
