package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type fakeStore struct {
	orders map[string]domain.DetectedOrder
	trades map[string]domain.DetectedTrade
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: map[string]domain.DetectedOrder{}, trades: map[string]domain.DetectedTrade{}}
}

func (f *fakeStore) SaveOrder(_ context.Context, id string, o domain.DetectedOrder) error {
	f.orders[id] = o
	return nil
}

func (f *fakeStore) SaveTrade(_ context.Context, id string, tr domain.DetectedTrade) error {
	f.trades[id] = tr
	return nil
}

func (f *fakeStore) ListRecent(context.Context, domain.ListOpts) ([]domain.FlowRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListBefore(context.Context, time.Time) ([]domain.FlowRecord, error) {
	return nil, nil
}

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
	err       error
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *fakeBus) Publish(_ context.Context, ch string, payload []byte) error {
	b.published[ch] = append(b.published[ch], payload)
	return b.err
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) StreamLastID(context.Context, string) (string, error) { return "0-0", nil }

type fakeAlerter struct{ sent []domain.Event }

func (a *fakeAlerter) NotifyDetection(_ context.Context, ev domain.Event) error {
	a.sent = append(a.sent, ev)
	return nil
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func TestStoreSink(t *testing.T) {
	store := newFakeStore()
	sink := NewStoreSink(store)

	order := orderEvent("AAPL", 4000)
	order.ID = "o-1"
	require.NoError(t, sink.PersistAndAlert(context.Background(), order))

	trade := domain.NewTradeEvent(domain.DetectedTrade{Symbol: "TSLA", Volume: 500, TradeValueUSD: 250_000})
	trade.ID = "t-1"
	require.NoError(t, sink.PersistAndAlert(context.Background(), trade))

	assert.Equal(t, int64(4000), store.orders["o-1"].SizeShares)
	assert.Equal(t, int64(500), store.trades["t-1"].Volume)

	assert.Error(t, sink.PersistAndAlert(context.Background(), domain.Event{ID: "empty"}))
}

func TestBusSink(t *testing.T) {
	bus := newFakeBus()
	sink := NewBusSink(bus, "ch:whale", "whale_events")

	ev := orderEvent("AAPL", 4000)
	ev.ID = "o-1"
	require.NoError(t, sink.PersistAndAlert(context.Background(), ev))

	require.Len(t, bus.published["ch:whale"], 1)
	require.Len(t, bus.streamed["whale_events"], 1)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(bus.published["ch:whale"][0], &decoded))
	assert.Equal(t, "o-1", decoded.ID)
	require.NotNil(t, decoded.Order)
	assert.Equal(t, int64(4000), decoded.Order.SizeShares)

	bus.err = errors.New("down")
	err := sink.PersistAndAlert(context.Background(), ev)
	assert.Error(t, err)
	assert.Len(t, bus.streamed["whale_events"], 2, "stream leg still runs when publish fails")
}

func TestAlertSink(t *testing.T) {
	t.Run("throttled", func(t *testing.T) {
		alerter := &fakeAlerter{}
		limiter := &fakeLimiter{allow: false}
		sink := NewAlertSink(alerter, limiter, 3, time.Minute, discardLogger())

		require.NoError(t, sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1)))
		assert.Empty(t, alerter.sent)
		assert.Equal(t, []string{"alert:AAPL"}, limiter.keys)
	})

	t.Run("allowed", func(t *testing.T) {
		alerter := &fakeAlerter{}
		sink := NewAlertSink(alerter, &fakeLimiter{allow: true}, 3, time.Minute, discardLogger())
		require.NoError(t, sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1)))
		assert.Len(t, alerter.sent, 1)
	})

	t.Run("limiter failure sends anyway", func(t *testing.T) {
		alerter := &fakeAlerter{}
		sink := NewAlertSink(alerter, &fakeLimiter{err: errors.New("redis down")}, 3, time.Minute, discardLogger())
		require.NoError(t, sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1)))
		assert.Len(t, alerter.sent, 1)
	})

	t.Run("no limiter", func(t *testing.T) {
		alerter := &fakeAlerter{}
		sink := NewAlertSink(alerter, nil, 0, 0, discardLogger())
		require.NoError(t, sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1)))
		assert.Len(t, alerter.sent, 1)
	})
}

func TestBreakerSink(t *testing.T) {
	inner := &recordingSink{name: "store", err: errors.New("db down")}
	sink := NewBreakerSink(inner, time.Minute, discardLogger())
	assert.Equal(t, "store", sink.Name())

	for i := 0; i < 3; i++ {
		err := sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrSinkOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.PersistAndAlert(context.Background(), orderEvent("AAPL", 1))
	assert.ErrorIs(t, err, domain.ErrSinkOpen)
	assert.Len(t, inner.events(), 3)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	assert.Equal(t, "log", sink.Name())

	ev := orderEvent("NVDA", 600)
	ev.ID = "o-9"
	require.NoError(t, sink.PersistAndAlert(context.Background(), ev))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "whale detected", line["msg"])
	assert.Equal(t, "NVDA", line["symbol"])
	assert.Equal(t, "o-9", line["event_id"])
	assert.InDelta(t, 60_000.0, line["value_usd"], 1e-9)

	assert.Error(t, sink.PersistAndAlert(context.Background(), domain.Event{ID: "empty"}))
}
