package tracker

import (
	"math"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// signals are the quantities every heuristic reads, derived once per quote
// from the previous snapshot.
type signals struct {
	quote          domain.Quote
	refPrice       float64
	prevRefPrice   float64
	bidSizeDelta   int64
	askSizeDelta   int64
	volumeDelta    int64
	priceChange    float64
	priceChangePct float64
	significant    bool
}

func deriveSignals(prev SymbolState, q domain.Quote, significantPct float64) signals {
	s := signals{
		quote:        q,
		refPrice:     q.ReferencePrice(),
		prevRefPrice: prev.Price,
		bidSizeDelta: q.BidSize - prev.BidSize,
		askSizeDelta: q.AskSize - prev.AskSize,
		volumeDelta:  q.Volume - prev.Volume,
	}
	// A shrinking cumulative volume is a reset or a late duplicate.
	if s.volumeDelta < 0 {
		s.volumeDelta = 0
	}
	if s.prevRefPrice > 0 && s.refPrice > 0 {
		s.priceChange = s.refPrice - s.prevRefPrice
		s.priceChangePct = math.Abs(s.priceChange) / s.prevRefPrice * 100
	}
	s.significant = s.priceChangePct > significantPct
	return s
}

// candidate is one heuristic's explanation of a quote transition.
type candidate struct {
	method domain.DetectionMethod
	side   domain.OrderSide
	size   int64
	price  float64
}

func (c candidate) value() float64 {
	return float64(c.size) * c.price
}

// heuristic evaluates one detection method. override is the factor by which
// its value must exceed the current best to replace it.
type heuristic struct {
	method   domain.DetectionMethod
	override float64
	eval     func(signals) (candidate, bool)
}

// heuristics is evaluation order. Reordering changes which method wins.
var heuristics = []heuristic{
	{domain.MethodBidSizeIncrease, 1.0, bidSizeIncrease},
	{domain.MethodAskSizeIncrease, 1.0, askSizeIncrease},
	{domain.MethodVolumeSpikeWithPriceImpact, 1.5, volumeSpikeWithImpact},
	{domain.MethodVolumeSpikeNoPriceImpact, 2.0, volumeSpikeNoImpact},
	{domain.MethodCombinedSignal, 1.2, combinedSignal},
}

// step is one evaluated heuristic ready to be folded.
type step struct {
	cand     candidate
	ok       bool
	override float64
}

// fold selects the winning candidate left to right. A candidate below
// minValue never participates. The first qualifying candidate becomes best;
// later ones replace it only when strictly larger than best×override.
func fold(steps []step, minValue float64) (candidate, bool) {
	var (
		best  candidate
		found bool
	)
	for _, s := range steps {
		if !s.ok || s.cand.value() < minValue {
			continue
		}
		if !found || s.cand.value() > best.value()*s.override {
			best, found = s.cand, true
		}
	}
	return best, found
}

func priceOr(p, fallback float64) float64 {
	if p > 0 {
		return p
	}
	return fallback
}

func bidSizeIncrease(s signals) (candidate, bool) {
	if s.bidSizeDelta <= 0 {
		return candidate{}, false
	}
	return candidate{
		method: domain.MethodBidSizeIncrease,
		side:   domain.OrderSideBuy,
		size:   s.bidSizeDelta,
		price:  priceOr(s.quote.Bid, s.refPrice),
	}, true
}

func askSizeIncrease(s signals) (candidate, bool) {
	if s.askSizeDelta <= 0 {
		return candidate{}, false
	}
	return candidate{
		method: domain.MethodAskSizeIncrease,
		side:   domain.OrderSideSell,
		size:   s.askSizeDelta,
		price:  priceOr(s.quote.Ask, s.refPrice),
	}, true
}

func volumeSpikeWithImpact(s signals) (candidate, bool) {
	if s.volumeDelta <= 0 || !s.significant {
		return candidate{}, false
	}
	var side domain.OrderSide
	switch {
	case s.priceChange > 0:
		side = domain.OrderSideBuy
	case s.priceChange < 0:
		side = domain.OrderSideSell
	default:
		return candidate{}, false
	}
	return candidate{
		method: domain.MethodVolumeSpikeWithPriceImpact,
		side:   side,
		size:   s.volumeDelta,
		price:  s.refPrice,
	}, true
}

func volumeSpikeNoImpact(s signals) (candidate, bool) {
	if s.volumeDelta <= 0 || s.significant {
		return candidate{}, false
	}
	bid, ask := float64(s.quote.BidSize), float64(s.quote.AskSize)
	side := domain.OrderSideExecuted
	switch {
	case bid > ask*1.5:
		side = domain.OrderSideBuy
	case ask > bid*1.5:
		side = domain.OrderSideSell
	}
	return candidate{
		method: domain.MethodVolumeSpikeNoPriceImpact,
		side:   side,
		size:   s.volumeDelta,
		price:  s.refPrice,
	}, true
}

func combinedSignal(s signals) (candidate, bool) {
	if (s.bidSizeDelta <= 0 && s.askSizeDelta <= 0) || s.volumeDelta <= 0 || !s.significant {
		return candidate{}, false
	}
	size := max(s.bidSizeDelta, s.askSizeDelta)
	if float64(size) <= float64(s.volumeDelta)*0.5 {
		size = s.volumeDelta
	}
	c := candidate{method: domain.MethodCombinedSignal, size: size}
	if s.bidSizeDelta > s.askSizeDelta {
		c.side = domain.OrderSideBuy
		c.price = priceOr(s.quote.Bid, s.refPrice)
	} else {
		c.side = domain.OrderSideSell
		c.price = priceOr(s.quote.Ask, s.refPrice)
	}
	return c, true
}
