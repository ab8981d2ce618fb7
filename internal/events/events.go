// Package events publishes trade lifecycle notifications to a message broker.
// Publishing is a side channel: a failure is logged by the caller and never
// rolls back the ledger write that produced the event.
package events

import (
	"context"
	"time"
)

type Type string

const (
	TradeCreated   Type = "trade.created"
	TradeCorrected Type = "trade.corrected"
	TradeCompleted Type = "trade.completed"
	TradeChecked   Type = "trade.checked"
	TradeCanceled  Type = "trade.canceled"
	SplitOpened    Type = "split.opened"
	SplitSettled   Type = "split.settled"
	SplitRefunded  Type = "split.refunded"
)

// TradeEvent is one lifecycle change of a trade or split.
type TradeEvent struct {
	Type        Type      `json:"type"`
	TradeID     string    `json:"trade_id"`
	SplitID     string    `json:"split_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	BaseType    string    `json:"base_type,omitempty"`
	Money       int64     `json:"money"`
	Actor       string    `json:"actor,omitempty"`
	At          time.Time `json:"at"`
}

// Key partitions events so every change of one trade lands in order.
func (e TradeEvent) Key() string {
	if e.SplitID != "" {
		return e.SplitID
	}
	return e.TradeID
}

type Publisher interface {
	Publish(ctx context.Context, e TradeEvent) error
	Close()
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TradeEvent) error { return nil }
func (NopPublisher) Close()                                    {}
