package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// Setting documents are keyed by these collection names.
const (
	SettingsTrades  = "trades"
	SettingsMembers = "members"
	SettingsAward   = "award"
)

// StageFeeKey is the trades settings option holding the fee for kind.
func StageFeeKey(kind string) string { return kind + "_stage_fee" }

// FeeTable resolves the stage fee charged on a trade against an account of
// the given kind. The fee is read once at creation and stored on the trade.
type FeeTable interface {
	StageFee(ctx context.Context, kind string) (int64, error)
}

// StaticFees is a fixed kind to fee table. Unknown kinds cost nothing.
type StaticFees map[string]int64

func (f StaticFees) StageFee(_ context.Context, kind string) (int64, error) {
	return f[kind], nil
}

// ParseStaticFees reads "kind=fee,kind=fee". Fees may be negative.
func ParseStaticFees(s string) (StaticFees, error) {
	fees := StaticFees{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kind, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("stage fee %q: want kind=fee", pair)
		}
		fee, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stage fee %q: %w", pair, err)
		}
		fees[strings.TrimSpace(kind)] = fee
	}
	return fees, nil
}

// SettingFees reads "<kind>_stage_fee" from the trades settings document and
// falls back to a static table when the document or the key is missing.
type SettingFees struct {
	settings storage.Collection
	fallback StaticFees
}

func NewSettingFees(settings storage.Collection, fallback StaticFees) *SettingFees {
	return &SettingFees{settings: settings, fallback: fallback}
}

func (f *SettingFees) StageFee(ctx context.Context, kind string) (int64, error) {
	doc, err := f.settings.Get(ctx, pipeline.Match(pipeline.Eq(pipeline.Field("collection_name"), SettingsTrades)))
	if err != nil {
		return 0, fmt.Errorf("load fee table: %w", err)
	}
	if fields, ok := doc["fields"].(storage.Document); ok {
		if fee, ok := toInt64(fields[StageFeeKey(kind)]); ok {
			return fee, nil
		}
	}
	return f.fallback.StageFee(ctx, kind)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
