// Package service implements the trade workflow and the CRUD services on top
// of the collection gateway. Every multi-step procedure here is a sequence of
// independent gateway calls: a failure part way returns the failing step's
// error and leaves the earlier writes in place.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/navid-fn/tradedesk/internal/events"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState rejects a transition the trade's current state forbids.
	ErrInvalidState = errors.New("invalid state")
	ErrSplitClosed  = errors.New("split trade is closed")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(collection, id string) error {
	return fmt.Errorf("%s %q: %w", collection, id, storage.ErrNotFound)
}

type options struct {
	now func() time.Time
	loc *time.Location
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone used for calendar days and months.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timezone is the zone name handed to date formatting stages. The process
// local zone has no portable name, so it falls back to the store's default.
func (o options) timezone() string {
	if o.loc == time.Local {
		return ""
	}
	return o.loc.String()
}

// Page is the paging part of every list request. PageSize 0 returns
// everything.
type Page struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

func collections(p storage.Provider, names ...string) ([]storage.Collection, error) {
	out := make([]storage.Collection, 0, len(names))
	for _, name := range names {
		c, err := p.Collection(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func matchID(id string) pipeline.Stage {
	return pipeline.Match(pipeline.Eq(pipeline.Field("id"), id))
}

// optional turns an empty request parameter into "no filter".
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func decode[T any](doc storage.Document) (*T, error) {
	var v T
	if err := storage.Decode(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// getOne runs stages on c and decodes the first result. A missing document
// is storage.ErrNotFound.
func getOne[T any](ctx context.Context, c storage.Collection, id string, stages ...pipeline.Stage) (*T, error) {
	doc, err := c.Get(ctx, append([]pipeline.Stage{matchID(id)}, stages...)...)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFound(c.Name(), id)
	}
	return decode[T](doc)
}

func listOf[T any](ctx context.Context, c storage.Collection, q storage.ListQuery) (*models.PaginatedResult[T], error) {
	res, err := c.List(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := storage.DecodeAll[T](res.Items)
	if err != nil {
		return nil, err
	}
	return &models.PaginatedResult[T]{Items: items, PageCount: res.PageCount, TotalCount: res.TotalCount}, nil
}

type notifier struct {
	pub    events.Publisher
	logger *logrus.Entry
}

// publish never fails the caller; the ledger write already happened.
func (n notifier) publish(ctx context.Context, e events.TradeEvent) {
	if err := n.pub.Publish(ctx, e); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"event":    e.Type,
			"trade_id": e.TradeID,
		}).Warn("failed to publish event")
	}
}
