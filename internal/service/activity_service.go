package service

import (
	"context"
	"time"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// ActivityInput is sent with dates: EndTime names the last day of the
// activity and is widened to that day's final second.
type ActivityInput struct {
	GameID     string          `json:"game_id"`
	Name       string          `json:"name"`
	BaseType   models.BaseType `json:"base_type"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time"`
	MoneyFloor int64           `json:"money_floor"`
	CoinFree   int64           `json:"coin_free"`
}

func (in ActivityInput) validate(creating bool) error {
	if in.Name == "" {
		return invalid("name is required")
	}
	if creating {
		if in.GameID == "" {
			return invalid("game_id is required")
		}
		if !in.BaseType.Valid() {
			return invalid("unknown base_type %q", in.BaseType)
		}
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return invalid("start_time and end_time are required")
	}
	if in.EndTime.Before(in.StartTime) {
		return invalid("end_time is before start_time")
	}
	if in.MoneyFloor < 0 || in.CoinFree < 0 {
		return invalid("money_floor and coin_free must not be negative")
	}
	return nil
}

func endOfDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1).Add(-time.Second)
}

type ActivityQuery struct {
	Page
	GameID string `form:"game_id"`
	// At selects the activities running at that moment; zero means now.
	At *time.Time `form:"at"`
}

type ActivityService struct {
	activities storage.Collection
	opts       options
}

func NewActivityService(p storage.Provider, opts ...Option) (*ActivityService, error) {
	activities, err := p.Collection(storage.Activities)
	if err != nil {
		return nil, err
	}
	return &ActivityService{activities: activities, opts: newOptions(opts)}, nil
}

func withGame() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Lookup(storage.Games, "game_id", pipeline.As("game")),
		pipeline.AddFields(pipeline.Set("game", pipeline.First(pipeline.Field("game")))),
	}
}

func (s *ActivityService) Create(ctx context.Context, in ActivityInput) (*models.Activity, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}
	return create[models.Activity](ctx, s.activities, models.Activity{
		GameID:     in.GameID,
		Name:       in.Name,
		BaseType:   in.BaseType,
		StartTime:  in.StartTime,
		EndTime:    endOfDay(in.EndTime),
		MoneyFloor: in.MoneyFloor,
		CoinFree:   in.CoinFree,
		CreatedAt:  s.opts.now(),
	})
}

func (s *ActivityService) Get(ctx context.Context, id string) (*models.ActivityView, error) {
	return getOne[models.ActivityView](ctx, s.activities, id, withGame()...)
}

// List returns the activities running at q.At, newest start first.
func (s *ActivityService) List(ctx context.Context, q ActivityQuery) (*models.PaginatedResult[models.ActivityView], error) {
	at := s.opts.now()
	if q.At != nil {
		at = *q.At
	}
	conds := pipeline.Equal(map[string]any{"game_id": optional(q.GameID)})
	conds = append(conds,
		pipeline.AtMost("start_time", at),
		pipeline.AtLeast("end_time", at),
	)
	return listOf[models.ActivityView](ctx, s.activities, storage.ListQuery{
		Pipeline: append(pipeline.Pipeline{pipeline.MatchAll(conds...)}, withGame()...),
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     []pipeline.SortField{pipeline.Desc("start_time")},
	})
}

// Update edits everything but the game and the direction.
func (s *ActivityService) Update(ctx context.Context, id string, in ActivityInput) (*models.Activity, error) {
	if err := in.validate(false); err != nil {
		return nil, err
	}
	doc, err := s.activities.Update(ctx, storage.ByID(id), storage.Document{
		"name":        in.Name,
		"start_time":  in.StartTime,
		"end_time":    endOfDay(in.EndTime),
		"money_floor": in.MoneyFloor,
		"coin_free":   in.CoinFree,
	}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Activity](doc)
}

func (s *ActivityService) Delete(ctx context.Context, id string) (*models.Activity, error) {
	doc, err := s.activities.Delete(ctx, storage.ByID(id))
	if err != nil {
		return nil, err
	}
	return decode[models.Activity](doc)
}
