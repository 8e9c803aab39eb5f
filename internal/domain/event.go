package domain

import "time"

// EventKind distinguishes the two detection payloads.
type EventKind string

const (
	EventKindOrder EventKind = "large_order"
	EventKindTrade EventKind = "large_trade"
)

// Event wraps exactly one detection for hand-off to sinks. ID is assigned by
// the emitter and is stable across every sink the event reaches.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Symbol    string         `json:"symbol"`
	Order     *DetectedOrder `json:"order,omitempty"`
	Trade     *DetectedTrade `json:"trade,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewOrderEvent wraps a detected order.
func NewOrderEvent(o DetectedOrder) Event {
	return Event{Kind: EventKindOrder, Symbol: o.Symbol, Order: &o}
}

// NewTradeEvent wraps a detected trade.
func NewTradeEvent(t DetectedTrade) Event {
	return Event{Kind: EventKindTrade, Symbol: t.Symbol, Trade: &t}
}

// ValueUSD returns the notional of the wrapped detection.
func (e Event) ValueUSD() float64 {
	switch {
	case e.Order != nil:
		return e.Order.OrderValueUSD
	case e.Trade != nil:
		return e.Trade.TradeValueUSD
	}
	return 0
}

// OccurredAt returns the market time of the wrapped detection.
func (e Event) OccurredAt() time.Time {
	switch {
	case e.Order != nil:
		return e.Order.Timestamp
	case e.Trade != nil:
		return e.Trade.ExitTime
	}
	return e.CreatedAt
}
