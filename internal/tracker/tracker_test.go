package tracker

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func newTestTracker() *Tracker {
	return New(DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTracker_FirstQuoteNeverDetects(t *testing.T) {
	tr := newTestTracker()
	res := tr.ProcessQuote(quote("AAPL", 0, bid(150, 1_000_000), ask(150.05, 1_000_000), last(150), volume(90_000_000)))

	assert.True(t, res.Empty())
	assert.Empty(t, res.Events())
	stats := tr.Stats()
	assert.Equal(t, 1, stats.SymbolsTracked)
	assert.Equal(t, int64(1), stats.QuotesProcessed)
	assert.Zero(t, stats.OrdersDetected)
	assert.Zero(t, stats.TradesTracked)
}

func TestTracker_BidSizeIncrease(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessQuote(quote("AAPL", 0, bid(150, 1000), ask(150.05, 1000), last(150), volume(1_000_000)))
	res := tr.ProcessQuote(quote("AAPL", time.Second, bid(150, 5000), ask(150.05, 1000), last(150), volume(1_000_000)))

	require.NotNil(t, res.Order)
	assert.Nil(t, res.Trade)
	assert.Equal(t, domain.MethodBidSizeIncrease, res.Order.DetectionMethod)
	assert.Equal(t, domain.OrderSideBuy, res.Order.OrderSide)
	assert.InDelta(t, 600_000, res.Order.OrderValueUSD, 0.01)

	events := res.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventKindOrder, events[0].Kind)
	assert.Equal(t, "AAPL", events[0].Symbol)
	assert.Equal(t, int64(1), tr.Stats().OrdersDetected)
}

func TestTracker_DuplicateSuppressed(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessQuote(quote("GOOGL", 0, bid(140.05, 1000), ask(140.10, 1000), last(140.07), volume(500_000)))

	first := tr.ProcessQuote(quote("GOOGL", time.Second, bid(140.05, 5000), ask(140.10, 1000), last(140.07), volume(500_000)))
	second := tr.ProcessQuote(quote("GOOGL", 3*time.Second, bid(140.05, 9000), ask(140.10, 1000), last(140.07), volume(500_000)))

	require.NotNil(t, first.Order)
	assert.Equal(t, int64(4000), first.Order.SizeShares)
	assert.Equal(t, 140.05, first.Order.Price)
	assert.Nil(t, second.Order)

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.OrdersDetected)
	assert.Equal(t, int64(1), stats.DuplicatesIgnored)

	third := tr.ProcessQuote(quote("GOOGL", 10*time.Second, bid(140.05, 13000), ask(140.10, 1000), last(140.07), volume(500_000)))
	require.NotNil(t, third.Order)
	assert.Equal(t, int64(2), tr.Stats().OrdersDetected)
}

func TestTracker_OrderAndTradeFromOneQuote(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessQuote(quote("TSLA", 0, bid(249.85, 300), ask(249.95, 300), last(249.90), volume(10_000_000)))
	res := tr.ProcessQuote(quote("TSLA", time.Second, bid(250.20, 300), ask(250.30, 300), last(250.25), volume(10_500_000)))

	require.NotNil(t, res.Order)
	require.NotNil(t, res.Trade)
	assert.Equal(t, domain.MethodVolumeSpikeWithPriceImpact, res.Order.DetectionMethod)
	assert.Equal(t, domain.TradeMethodImmediateSpike, res.Trade.DetectionMethod)
	assert.InDelta(t, 125_125_000, res.Trade.TradeValueUSD, 0.01)

	events := res.Events()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventKindOrder, events[0].Kind)
	assert.Equal(t, domain.EventKindTrade, events[1].Kind)

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.OrdersDetected)
	assert.Equal(t, int64(1), stats.TradesTracked)
	assert.Zero(t, stats.ActiveTrades)
}

func TestTracker_QuoteWithoutPriceLeavesStateAlone(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessQuote(quote("META", 0, volume(1000)))
	assert.Zero(t, tr.Stats().SymbolsTracked)

	tr.ProcessQuote(quote("META", time.Second, bid(300, 100), ask(300.2, 100), last(300.1), volume(1000)))
	res := tr.ProcessQuote(quote("META", 2*time.Second, volume(5000)))
	assert.Nil(t, res.Order)

	prev, ok := tr.states.Get("META")
	require.True(t, ok)
	assert.Equal(t, int64(1000), prev.Volume)
}

func TestTracker_ConcurrentSymbols(t *testing.T) {
	tr := newTestTracker()
	const symbols = 64

	var wg sync.WaitGroup
	for i := 0; i < symbols; i++ {
		sym := fmt.Sprintf("SYM%02d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.ProcessQuote(quote(sym, 0, bid(100, 100), ask(100.1, 100), last(100), volume(1000)))
			tr.ProcessQuote(quote(sym, time.Second, bid(100, 1100), ask(100.1, 100), last(100), volume(1000)))
		}()
	}
	wg.Wait()

	stats := tr.Stats()
	assert.Equal(t, symbols, stats.SymbolsTracked)
	assert.Equal(t, int64(symbols), stats.OrdersDetected)
	assert.Equal(t, int64(2*symbols), stats.QuotesProcessed)
}

func TestTracker_StatsCarryThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinOrderValue = 75_000
	tr := New(cfg, nil)

	stats := tr.Stats()
	assert.Equal(t, 75_000.0, stats.MinOrderValue)
	assert.Equal(t, 200_000.0, stats.MinTradeValue)
}
