package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func sampleOrder() domain.DetectedOrder {
	return domain.DetectedOrder{
		Symbol:          "AAPL",
		OrderType:       domain.OrderTypeBuy,
		OrderSide:       domain.OrderSideBuy,
		OrderValueUSD:   600000,
		Price:           150,
		SizeShares:      4000,
		Timestamp:       time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC),
		Instrument:      domain.InstrumentEquity,
		DetectionMethod: domain.MethodBidSizeIncrease,
	}
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by kind", func(t *testing.T) {
		s := &recordingSender{name: "rec"}
		n := NewNotifier([]Sender{s}, []string{" large_trade "}, 0, discardLogger())

		require.NoError(t, n.NotifyDetection(ctx, domain.NewOrderEvent(sampleOrder())))
		assert.Empty(t, s.titles)

		require.NoError(t, n.NotifyDetection(ctx, domain.NewTradeEvent(domain.DetectedTrade{Symbol: "TSLA", TradeValueUSD: 250000})))
		assert.Len(t, s.titles, 1)
	})

	t.Run("empty filter passes everything", func(t *testing.T) {
		s := &recordingSender{name: "rec"}
		n := NewNotifier([]Sender{s}, nil, 0, discardLogger())
		require.NoError(t, n.NotifyDetection(ctx, domain.NewOrderEvent(sampleOrder())))
		require.Len(t, s.titles, 1)
		assert.Equal(t, "Large BUY_ORDER: AAPL $600,000.00", s.titles[0])
	})

	t.Run("one failing sender does not block others", func(t *testing.T) {
		bad := &recordingSender{name: "bad", err: errors.New("down")}
		good := &recordingSender{name: "good"}
		n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

		err := n.NotifyAll(ctx, "t", "m")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad: down")
		assert.Len(t, good.titles, 1)
	})

	t.Run("no senders", func(t *testing.T) {
		n := NewNotifier(nil, nil, 10, discardLogger())
		assert.False(t, n.Enabled())
		assert.NoError(t, n.NotifyAll(ctx, "t", "m"))
	})

	t.Run("pacing honours context", func(t *testing.T) {
		s := &recordingSender{name: "rec"}
		n := NewNotifier([]Sender{s}, nil, 1, discardLogger())
		require.NoError(t, n.NotifyAll(ctx, "first", ""))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := n.NotifyAll(cctx, "second", "")
		require.Error(t, err)
		assert.Len(t, s.titles, 1)
	})
}

func TestFormatEvent(t *testing.T) {
	spread := 0.05
	o := sampleOrder()
	o.Spread = &spread
	title, body := FormatEvent(domain.NewOrderEvent(o))
	assert.Equal(t, "Large BUY_ORDER: AAPL $600,000.00", title)
	assert.Contains(t, body, "Size: 4,000 shares @ $150.00")
	assert.Contains(t, body, "Spread: $0.05")
	assert.Contains(t, body, "Time: 2025-01-06 14:30:00 UTC")

	entry := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	title, body = FormatEvent(domain.NewTradeEvent(domain.DetectedTrade{
		Symbol:          "TSLA",
		EntryPrice:      250,
		ExitPrice:       249.5,
		EntryTime:       entry,
		ExitTime:        entry.Add(90 * time.Second),
		Volume:          1200,
		TradeValueUSD:   299400,
		PriceChange:     -0.5,
		PriceChangePct:  -0.2,
		DetectionMethod: domain.TradeMethodAccumulated,
	}))
	assert.Equal(t, "Large Trade: TSLA $299,400.00", title)
	assert.Contains(t, body, "Volume: 1,200 shares")
	assert.Contains(t, body, "Change: -$0.50 (-0.20%)")
	assert.Contains(t, body, "Window: 15:00:00 to 15:01:30 (1m30s)")
}

func TestUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{999.999, "$1,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-50000, "-$50,000.00"},
		{100, "$100.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, usd(tt.in), "usd(%v)", tt.in)
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Large BUY_ORDER", "ok"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Large BUY\\_ORDER*\nok", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "fail"):
			http.Error(w, "bad request", http.StatusBadRequest)
		case strings.Contains(string(body), "slow down"):
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			require.NoError(t, json.Unmarshal(body, &got))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	assert.Equal(t, "discord", s.Name())
	require.NoError(t, s.Send(context.Background(), "Large SELL_ORDER: TSLA $1.00", "body"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Large SELL_ORDER: TSLA $1.00", got.Embeds[0].Title)
	assert.Equal(t, "body", got.Embeds[0].Description)
	assert.Equal(t, colorSell, got.Embeds[0].Color)

	err := s.Send(context.Background(), "title", "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")

	err = s.Send(context.Background(), "title", "slow down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry after 3s")
}

func TestEmbedColor(t *testing.T) {
	assert.Equal(t, colorBuy, embedColor("Large BUY_ORDER: AAPL"))
	assert.Equal(t, colorSell, embedColor("Large SELL_ORDER: AAPL"))
	assert.Equal(t, colorTrade, embedColor("Large Trade: AAPL"))
}
