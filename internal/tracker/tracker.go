// Package tracker implements whale detection over top-of-book quotes: a
// per-symbol state store, the multi-signal order detector, a short-window
// deduplicator and the trade accumulator.
package tracker

import (
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Result holds what a single quote produced. Either field may be nil.
type Result struct {
	Order *domain.DetectedOrder
	Trade *domain.DetectedTrade
}

// Empty reports whether the quote produced nothing.
func (r Result) Empty() bool {
	return r.Order == nil && r.Trade == nil
}

// Events wraps the detections for the emitter, order first.
func (r Result) Events() []domain.Event {
	var out []domain.Event
	if r.Order != nil {
		out = append(out, domain.NewOrderEvent(*r.Order))
	}
	if r.Trade != nil {
		out = append(out, domain.NewTradeEvent(*r.Trade))
	}
	return out
}

// Stats is a point-in-time view of the tracker counters.
type Stats struct {
	SymbolsTracked    int     `json:"symbols_tracked"`
	OrdersDetected    int64   `json:"orders_detected"`
	DuplicatesIgnored int64   `json:"duplicates_ignored"`
	TradesTracked     int64   `json:"trades_tracked"`
	ActiveTrades      int     `json:"active_trades"`
	QuotesProcessed   int64   `json:"quotes_processed"`
	MinOrderValue     float64 `json:"min_order_value"`
	MinTradeValue     float64 `json:"min_trade_value"`
}

// Tracker is the detection core. ProcessQuote may be called concurrently for
// different symbols; calls for one symbol must be serialized by the caller
// to keep deltas in arrival order.
type Tracker struct {
	cfg      Config
	states   *StateStore
	detector *Detector
	dedup    *Deduplicator
	acc      *Accumulator
	logger   *slog.Logger

	quotes     atomic.Int64
	orders     atomic.Int64
	duplicates atomic.Int64
	trades     atomic.Int64
}

// New creates a Tracker. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Tracker {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		states:   NewStateStore(),
		detector: NewDetector(cfg),
		dedup:    NewDeduplicator(cfg),
		acc:      NewAccumulator(cfg),
		logger:   logger.With(slog.String("component", "tracker")),
	}
}

// ProcessQuote runs q through the order detector and the trade accumulator.
func (t *Tracker) ProcessQuote(q domain.Quote) Result {
	t.quotes.Add(1)

	var res Result
	if order, ok := t.detectOrder(q); ok {
		res.Order = &order
	}
	if trade, ok := t.acc.Observe(q); ok {
		t.trades.Add(1)
		t.logger.Debug("large trade accumulated",
			slog.String("symbol", trade.Symbol),
			slog.Float64("value_usd", trade.TradeValueUSD),
			slog.Int64("volume", trade.Volume),
			slog.String("method", string(trade.DetectionMethod)),
		)
		res.Trade = &trade
	}
	return res
}

func (t *Tracker) detectOrder(q domain.Quote) (domain.DetectedOrder, bool) {
	// No reference price means nothing to diff; state stays as it was.
	if q.ReferencePrice() <= 0 {
		return domain.DetectedOrder{}, false
	}
	prev, ok := t.states.Update(q.Symbol, SnapshotOf(q))
	if !ok {
		return domain.DetectedOrder{}, false
	}
	order, found := t.detector.Detect(prev, q)
	if !found {
		return domain.DetectedOrder{}, false
	}
	if t.dedup.IsDuplicate(order.Symbol, order.OrderSide, order.SizeShares, order.Price, order.Timestamp) {
		t.duplicates.Add(1)
		t.logger.Debug("duplicate order ignored",
			slog.String("symbol", order.Symbol),
			slog.String("side", string(order.OrderSide)),
			slog.Int64("size", order.SizeShares),
		)
		return domain.DetectedOrder{}, false
	}
	t.orders.Add(1)
	t.logger.Debug("large order detected",
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.OrderSide)),
		slog.Float64("value_usd", order.OrderValueUSD),
		slog.String("method", string(order.DetectionMethod)),
	)
	return order, true
}

// Stats returns the current counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		SymbolsTracked:    t.states.Len(),
		OrdersDetected:    t.orders.Load(),
		DuplicatesIgnored: t.duplicates.Load(),
		TradesTracked:     t.trades.Load(),
		ActiveTrades:      t.acc.Active(),
		QuotesProcessed:   t.quotes.Load(),
		MinOrderValue:     t.cfg.MinOrderValue,
		MinTradeValue:     t.cfg.MinTradeValue,
	}
}

// Window exposes the open trade window for symbol.
func (t *Tracker) Window(symbol string) InFlight {
	return t.acc.Window(symbol)
}
