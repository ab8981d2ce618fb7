package service

import (
	"context"
	"time"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

const dayLayout = "2006-01-02"

type LoginRecordQuery struct {
	Page
	// Day is YYYY-MM-DD in the service's zone; empty means today.
	Day string `form:"search_time"`
}

type LoginRecordService struct {
	records storage.Collection
	opts    options
}

func NewLoginRecordService(p storage.Provider, opts ...Option) (*LoginRecordService, error) {
	records, err := p.Collection(storage.LoginRecords)
	if err != nil {
		return nil, err
	}
	return &LoginRecordService{records: records, opts: newOptions(opts)}, nil
}

func (s *LoginRecordService) Record(ctx context.Context, p models.Principal) (*models.LoginRecord, error) {
	if p.Username == "" {
		return nil, invalid("username is required")
	}
	return create[models.LoginRecord](ctx, s.records, models.LoginRecord{
		Username:  p.Username,
		Shift:     p.Shift,
		LoginTime: s.opts.now(),
	})
}

// List returns the logins of one calendar day, latest first.
func (s *LoginRecordService) List(ctx context.Context, q LoginRecordQuery) (*models.PaginatedResult[models.LoginRecord], error) {
	day := s.opts.now().In(s.opts.loc)
	if q.Day != "" {
		parsed, err := time.ParseInLocation(dayLayout, q.Day, s.opts.loc)
		if err != nil {
			return nil, invalid("search_time %q: want %s", q.Day, dayLayout)
		}
		day = parsed
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.opts.loc)
	return listOf[models.LoginRecord](ctx, s.records, storage.ListQuery{
		Pipeline: pipeline.Pipeline{pipeline.MatchAll(pipeline.Range("login_time", start, start.AddDate(0, 0, 1)))},
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     []pipeline.SortField{pipeline.Desc("login_time")},
	})
}
