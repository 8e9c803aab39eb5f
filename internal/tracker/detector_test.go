package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func TestDetector(t *testing.T) {
	d := NewDetector(DefaultConfig())

	t.Run("bid size increase", func(t *testing.T) {
		prev := quote("AAPL", 0, bid(150, 1000), ask(150.05, 1200), last(150), volume(1_000_000))
		cur := quote("AAPL", time.Second, bid(150, 5000), ask(150.05, 1200), last(150), volume(1_000_000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodBidSizeIncrease, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideBuy, order.OrderSide)
		assert.Equal(t, domain.OrderTypeBuy, order.OrderType)
		assert.Equal(t, int64(4000), order.SizeShares)
		assert.Equal(t, 150.0, order.Price)
		assert.InDelta(t, 600_000, order.OrderValueUSD, 0.01)
		assert.Equal(t, int64(4000), order.BidSizeDelta)
		assert.Equal(t, 1.0, order.SecondsSinceLast)
		require.NotNil(t, order.Spread)
		assert.InDelta(t, 0.05, *order.Spread, 1e-9)
		assert.Equal(t, domain.InstrumentEquity, order.Instrument)
	})

	t.Run("bid increase below minimum", func(t *testing.T) {
		prev := quote("AAPL", 0, bid(150, 1000), ask(150.05, 1200), last(150), volume(1_000_000))
		cur := quote("AAPL", time.Second, bid(150, 1100), ask(150.05, 1200), last(150), volume(1_000_000))

		_, ok := d.Detect(SnapshotOf(prev), cur)
		assert.False(t, ok)
	})

	t.Run("volume spike with price impact", func(t *testing.T) {
		prev := quote("TSLA", 0, bid(249.85, 300), ask(249.95, 300), last(249.90), volume(10_000_000))
		cur := quote("TSLA", time.Second, bid(250.20, 300), ask(250.30, 300), last(250.25), volume(10_500_000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodVolumeSpikeWithPriceImpact, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideBuy, order.OrderSide)
		assert.Equal(t, int64(500_000), order.SizeShares)
		assert.InDelta(t, 125_125_000, order.OrderValueUSD, 0.01)
	})

	t.Run("sub threshold move is a spike without impact", func(t *testing.T) {
		// 250.05 -> 250.25 is a 0.08% move, under the 0.1% threshold.
		prev := quote("TSLA", 0, bid(250.00, 300), ask(250.10, 300), last(250.05), volume(10_000_000))
		cur := quote("TSLA", time.Second, bid(250.20, 300), ask(250.30, 300), last(250.25), volume(10_500_000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodVolumeSpikeNoPriceImpact, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideExecuted, order.OrderSide)
		assert.Equal(t, domain.OrderTypeLargeTrade, order.OrderType)
		assert.InDelta(t, 125_125_000, order.OrderValueUSD, 0.01)
	})

	t.Run("price impact sell on a falling price", func(t *testing.T) {
		prev := quote("XOM", 0, last(100), volume(1000))
		cur := quote("XOM", time.Second, last(99), volume(2000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodVolumeSpikeWithPriceImpact, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideSell, order.OrderSide)
		assert.InDelta(t, 99_000, order.OrderValueUSD, 0.01)
	})

	t.Run("larger ask increase beats bid increase", func(t *testing.T) {
		prev := quote("F", 0, bid(10, 1000), ask(10.01, 1000), last(10), volume(500))
		cur := quote("F", time.Second, bid(10, 7000), ask(10.01, 7500), last(10), volume(500))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodAskSizeIncrease, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideSell, order.OrderSide)
		assert.Equal(t, int64(6500), order.SizeShares)
	})

	t.Run("smaller ask increase keeps bid increase", func(t *testing.T) {
		prev := quote("F", 0, bid(10, 1000), ask(10.01, 1000), last(10), volume(500))
		cur := quote("F", time.Second, bid(10, 7000), ask(10.01, 6500), last(10), volume(500))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodBidSizeIncrease, order.DetectionMethod)
		assert.Equal(t, int64(6000), order.SizeShares)
	})

	t.Run("price impact overrides smaller bid increase", func(t *testing.T) {
		prev := quote("MSFT", 0, bid(100.00, 1000), ask(100.10, 1000), last(100), volume(1_000_000))
		cur := quote("MSFT", time.Second, bid(100.40, 1600), ask(100.50, 1000), last(100.5), volume(1_010_000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		// Bid 60,240 then impact 1,005,000; combined 1,004,000 stays under 1.2x.
		assert.Equal(t, domain.MethodVolumeSpikeWithPriceImpact, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideBuy, order.OrderSide)
		assert.Equal(t, int64(10_000), order.SizeShares)
		assert.InDelta(t, 1_005_000, order.OrderValueUSD, 0.01)
	})

	t.Run("combined signal overrides when priced at a wide ask", func(t *testing.T) {
		prev := quote("NVDA", 0, bid(99.9, 1000), ask(100.1, 1000), last(100), volume(100_000))
		cur := quote("NVDA", time.Second, bid(100.9, 1000), ask(125, 1100), last(101), volume(101_000))

		order, ok := d.Detect(SnapshotOf(prev), cur)
		require.True(t, ok)
		assert.Equal(t, domain.MethodCombinedSignal, order.DetectionMethod)
		assert.Equal(t, domain.OrderSideSell, order.OrderSide)
		assert.Equal(t, int64(1000), order.SizeShares)
		assert.Equal(t, 125.0, order.Price)
	})

	t.Run("no impact side from book imbalance", func(t *testing.T) {
		testCases := []struct {
			name    string
			bidSize int64
			askSize int64
			want    domain.OrderSide
		}{
			{"bid heavy", 400, 100, domain.OrderSideBuy},
			{"ask heavy", 100, 400, domain.OrderSideSell},
			{"balanced", 120, 100, domain.OrderSideExecuted},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				prev := quote("KO", 0, bid(49.99, 100), ask(50.01, 100), last(50), volume(1_000_000))
				cur := quote("KO", time.Second, bid(49.99, tc.bidSize), ask(50.01, tc.askSize), last(50.01), volume(1_002_000))

				order, ok := d.Detect(SnapshotOf(prev), cur)
				require.True(t, ok)
				assert.Equal(t, domain.MethodVolumeSpikeNoPriceImpact, order.DetectionMethod)
				assert.Equal(t, tc.want, order.OrderSide)
				assert.Equal(t, int64(2000), order.SizeShares)
			})
		}
	})

	t.Run("volume reset is not a trade", func(t *testing.T) {
		prev := quote("IBM", 0, bid(180, 500), ask(180.1, 500), last(180), volume(2_000_000))
		cur := quote("IBM", time.Second, bid(180, 500), ask(180.1, 500), last(180), volume(10))

		_, ok := d.Detect(SnapshotOf(prev), cur)
		assert.False(t, ok)
	})
}
