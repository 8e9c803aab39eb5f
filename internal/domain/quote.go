package domain

import (
	"fmt"
	"time"
)

// Quote is a normalized top-of-book snapshot for one symbol. Optional numeric
// fields use their zero value to mean "not reported by the provider".
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid,omitempty"`
	Ask       float64   `json:"ask,omitempty"`
	BidSize   int64     `json:"bid_size,omitempty"`
	AskSize   int64     `json:"ask_size,omitempty"`
	LastPrice float64   `json:"last,omitempty"`
	Volume    int64     `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReferencePrice is the last trade price, falling back to the bid/ask
// midpoint. It returns 0 when neither is available.
func (q Quote) ReferencePrice() float64 {
	if q.LastPrice > 0 {
		return q.LastPrice
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return 0
}

// Spread returns ask minus bid when both sides are quoted.
func (q Quote) Spread() (float64, bool) {
	if q.Bid > 0 && q.Ask > 0 {
		return q.Ask - q.Bid, true
	}
	return 0, false
}

// HasPrice reports whether the quote carries any price information.
func (q Quote) HasPrice() bool {
	return q.LastPrice > 0 || q.Bid > 0 || q.Ask > 0
}

// Validate checks the invariants the detection core relies on. Quotes that
// fail validation are dropped at the feed boundary.
func (q Quote) Validate() error {
	switch {
	case q.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidQuote)
	case q.Bid < 0 || q.Ask < 0 || q.LastPrice < 0:
		return fmt.Errorf("%w: %s: negative price", ErrInvalidQuote, q.Symbol)
	case q.BidSize < 0 || q.AskSize < 0:
		return fmt.Errorf("%w: %s: negative size", ErrInvalidQuote, q.Symbol)
	case q.Volume < 0:
		return fmt.Errorf("%w: %s: negative volume", ErrInvalidQuote, q.Symbol)
	case !q.HasPrice() && q.Volume == 0:
		return fmt.Errorf("%w: %s: no price or volume", ErrInvalidQuote, q.Symbol)
	}
	return nil
}
