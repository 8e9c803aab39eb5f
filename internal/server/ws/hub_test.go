package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}
func (b *chanBus) StreamLastID(context.Context, string) (string, error) { return "0-0", nil }

func newTestHub(t *testing.T) (*Hub, *chanBus, string) {
	t.Helper()
	bus := &chanBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, "ch:whale", "stream", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func eventJSON(t *testing.T, symbol string) []byte {
	t.Helper()
	b, err := json.Marshal(domain.NewTradeEvent(domain.DetectedTrade{Symbol: symbol, TradeValueUSD: 300000}))
	require.NoError(t, err)
	return b
}

func TestHubRelaysEvents(t *testing.T) {
	hub, bus, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readJSON(t, conn)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, "stream", status["mode"])
	assert.Equal(t, 1, hub.Clients())

	bus.ch <- eventJSON(t, "TSLA")
	got := readJSON(t, conn)
	assert.Equal(t, "TSLA", got["symbol"])
	assert.Equal(t, "large_trade", got["kind"])
}

func TestHubSymbolFilter(t *testing.T) {
	_, bus, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?symbols=aapl", nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readJSON(t, conn)
	assert.Equal(t, []any{"AAPL"}, status["symbols"])

	bus.ch <- eventJSON(t, "TSLA")
	bus.ch <- eventJSON(t, "AAPL")
	got := readJSON(t, conn)
	assert.Equal(t, "AAPL", got["symbol"])

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Symbols: []string{"msft"}}))
	ack := readJSON(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.ElementsMatch(t, []any{"AAPL", "MSFT"}, ack["symbols"])

	bus.ch <- eventJSON(t, "MSFT")
	got = readJSON(t, conn)
	assert.Equal(t, "MSFT", got["symbol"])
}

func TestHubClientDisconnect(t *testing.T) {
	hub, _, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	readJSON(t, conn)
	require.Equal(t, 1, hub.Clients())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
