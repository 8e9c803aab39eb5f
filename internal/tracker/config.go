package tracker

import (
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Config holds the thresholds of the detection core.
type Config struct {
	MinOrderValue      float64           // USD, per detected order
	MinTradeValue      float64           // USD, per accumulated trade
	SignificantMovePct float64           // percent, strict
	DedupWindow        time.Duration     // entries older than this never match
	DedupCapacity      int               // recent orders kept per symbol
	SizeTolerance      float64           // fraction of candidate size
	PriceTolerance     float64           // fraction of candidate price
	Instrument         domain.Instrument // stamped on every detection
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MinOrderValue:      50_000,
		MinTradeValue:      200_000,
		SignificantMovePct: 0.1,
		DedupWindow:        5 * time.Second,
		DedupCapacity:      10,
		SizeTolerance:      0.2,
		PriceTolerance:     0.01,
		Instrument:         domain.InstrumentEquity,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinOrderValue <= 0 {
		c.MinOrderValue = d.MinOrderValue
	}
	if c.MinTradeValue <= 0 {
		c.MinTradeValue = d.MinTradeValue
	}
	if c.SignificantMovePct <= 0 {
		c.SignificantMovePct = d.SignificantMovePct
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.DedupCapacity <= 0 || c.DedupCapacity > d.DedupCapacity {
		c.DedupCapacity = d.DedupCapacity
	}
	if c.SizeTolerance <= 0 {
		c.SizeTolerance = d.SizeTolerance
	}
	if c.PriceTolerance <= 0 {
		c.PriceTolerance = d.PriceTolerance
	}
	if c.Instrument == "" {
		c.Instrument = d.Instrument
	}
	return c
}
