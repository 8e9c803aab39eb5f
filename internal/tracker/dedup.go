package tracker

import (
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type recentOrder struct {
	side  domain.OrderSide
	size  int64
	price float64
	at    time.Time
}

// recentOrders is a fixed-capacity ring, oldest entry overwritten first.
type recentOrders struct {
	mu   sync.Mutex
	buf  []recentOrder
	next int
	n    int
}

func (r *recentOrders) push(o recentOrder) {
	r.buf[r.next] = o
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// each visits the stored entries newest first.
func (r *recentOrders) each(fn func(recentOrder) bool) {
	for i := 0; i < r.n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		if !fn(r.buf[idx]) {
			return
		}
	}
}

// Deduplicator suppresses near-identical detections for the same symbol
// inside a short time window.
type Deduplicator struct {
	window   time.Duration
	sizeTol  float64
	priceTol float64
	rings    *registry[recentOrders]
}

// NewDeduplicator creates a Deduplicator from the dedup fields of cfg.
func NewDeduplicator(cfg Config) *Deduplicator {
	cfg = cfg.withDefaults()
	capacity := cfg.DedupCapacity
	return &Deduplicator{
		window:   cfg.DedupWindow,
		sizeTol:  cfg.SizeTolerance,
		priceTol: cfg.PriceTolerance,
		rings: newRegistry(func() *recentOrders {
			return &recentOrders{buf: make([]recentOrder, capacity)}
		}),
	}
}

// IsDuplicate reports whether an order matching side, size and price was
// recorded for symbol within the window before ts. A non-duplicate is
// recorded as a side effect.
func (d *Deduplicator) IsDuplicate(symbol string, side domain.OrderSide, size int64, price float64, ts time.Time) bool {
	ring := d.rings.get(symbol)
	ring.mu.Lock()
	defer ring.mu.Unlock()

	dup := false
	ring.each(func(e recentOrder) bool {
		if ts.Sub(e.at) < d.window &&
			e.side == side &&
			math.Abs(float64(e.size-size)) < d.sizeTol*float64(size) &&
			math.Abs(e.price-price) < d.priceTol*price {
			dup = true
			return false
		}
		return true
	})
	if !dup {
		ring.push(recentOrder{side: side, size: size, price: price, at: ts})
	}
	return dup
}

// Recorded returns how many orders are currently held for symbol.
func (d *Deduplicator) Recorded(symbol string) int {
	ring, ok := d.rings.lookup(symbol)
	if !ok {
		return 0
	}
	ring.mu.Lock()
	defer ring.mu.Unlock()
	return ring.n
}
