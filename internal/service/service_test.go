package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/storage"
	"github.com/navid-fn/tradedesk/internal/storage/memstore"
)

type recorder struct {
	mu     sync.Mutex
	events []events.TradeEvent
}

func (r *recorder) Publish(_ context.Context, e events.TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() {}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var (
	t0       = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	operator = models.Principal{Username: "sara", Shift: "morning"}
)

type fixture struct {
	ctx   context.Context
	store *memstore.Store
	now   time.Time
	pub   *recorder

	trades   *TradeService
	accounts *AccountService
	members  *MemberService
	games    *GameService
	settings *SettingService

	activities *ActivityService
	lotteries  *LotteryService
	logins     *LoginRecordService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		ctx:   context.Background(),
		store: memstore.New(storage.DefaultSchemas(), logger),
		now:   t0,
		pub:   &recorder{},
	}
	opts := []Option{WithClock(func() time.Time { return f.now }), WithLocation(time.UTC)}

	var err error
	f.trades, err = NewTradeService(f.store, StaticFees{"cash": 5}, f.pub, logger, opts...)
	require.NoError(t, err)
	f.accounts, err = NewAccountService(f.store, opts...)
	require.NoError(t, err)
	f.members, err = NewMemberService(f.store, opts...)
	require.NoError(t, err)
	f.games, err = NewGameService(f.store, opts...)
	require.NoError(t, err)
	f.settings, err = NewSettingService(f.store)
	require.NoError(t, err)
	f.activities, err = NewActivityService(f.store, opts...)
	require.NoError(t, err)
	f.lotteries, err = NewLotteryService(f.store, opts...)
	require.NoError(t, err)
	f.logins, err = NewLoginRecordService(f.store, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) property(t *testing.T, kind string, initAmount int64) string {
	t.Helper()
	p, err := f.accounts.CreateProperty(f.ctx, PropertyInput{Name: kind + " account", Kind: kind, InitAmount: initAmount})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) trade(t *testing.T, in CreateTradeInput) *models.Trade {
	t.Helper()
	tr, err := f.trades.Create(f.ctx, operator, in)
	require.NoError(t, err)
	return tr
}

func (f *fixture) rawTrade(t *testing.T, id string) *models.Trade {
	t.Helper()
	c, err := f.store.Collection(storage.Trades)
	require.NoError(t, err)
	tr, err := getOne[models.Trade](f.ctx, c, id)
	require.NoError(t, err)
	return tr
}

func (f *fixture) balance(t *testing.T, propertyID string) int64 {
	t.Helper()
	p, err := f.accounts.GetProperty(f.ctx, propertyID)
	require.NoError(t, err)
	return p.Balance
}
