package tracker

import (
	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Detector turns a previous snapshot and the next quote into at most one
// DetectedOrder. It holds no state and is safe for concurrent use.
type Detector struct {
	minValue       float64
	significantPct float64
	instrument     domain.Instrument
}

// NewDetector creates a Detector from cfg.
func NewDetector(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		minValue:       cfg.MinOrderValue,
		significantPct: cfg.SignificantMovePct,
		instrument:     cfg.Instrument,
	}
}

// Detect evaluates every heuristic against the transition prev -> q and
// returns the selected order, if any.
func (d *Detector) Detect(prev SymbolState, q domain.Quote) (domain.DetectedOrder, bool) {
	sig := deriveSignals(prev, q, d.significantPct)

	steps := make([]step, len(heuristics))
	for i, h := range heuristics {
		c, ok := h.eval(sig)
		steps[i] = step{cand: c, ok: ok, override: h.override}
	}
	best, ok := fold(steps, d.minValue)
	if !ok {
		return domain.DetectedOrder{}, false
	}
	return d.build(prev, sig, best), true
}

func (d *Detector) build(prev SymbolState, sig signals, c candidate) domain.DetectedOrder {
	q := sig.quote
	order := domain.DetectedOrder{
		Symbol:          q.Symbol,
		OrderType:       domain.OrderTypeFor(c.side),
		OrderSide:       c.side,
		OrderValueUSD:   c.value(),
		Price:           c.price,
		SizeShares:      c.size,
		Timestamp:       q.Timestamp,
		Instrument:      d.instrument,
		DetectionMethod: c.method,
		BidSize:         q.BidSize,
		AskSize:         q.AskSize,
		BidSizeDelta:    sig.bidSizeDelta,
		AskSizeDelta:    sig.askSizeDelta,
		VolumeDelta:     sig.volumeDelta,
		PriceChange:     sig.priceChange,
		PriceChangePct:  sig.priceChangePct,
	}
	if spread, ok := q.Spread(); ok {
		order.Spread = &spread
	}
	if !prev.UpdatedAt.IsZero() && !q.Timestamp.IsZero() {
		order.SecondsSinceLast = q.Timestamp.Sub(prev.UpdatedAt).Seconds()
	}
	return order
}
