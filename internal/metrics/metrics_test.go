package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/feed"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

type staticStats tracker.Stats

func (s staticStats) Stats() tracker.Stats { return tracker.Stats(s) }

type staticEmitter struct{ pending int }

func (s staticEmitter) Pending() int                 { return s.pending }
func (s staticEmitter) Counts() (int64, int64, int64) { return 7, 12, 2 }

func TestObservers(t *testing.T) {
	r := NewRegistry()

	r.ObserveSink("postgres", domain.EventKindOrder, 5*time.Millisecond, nil)
	r.ObserveSink("postgres", domain.EventKindOrder, 5*time.Millisecond, errors.New("down"))
	r.ObserveQuote(time.Microsecond, 2)
	r.ObserveQuote(time.Microsecond, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.SinkFailures.WithLabelValues("postgres", "large_order")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Detections))
	assert.Equal(t, 2, testutil.CollectAndCount(r.SinkDuration))
}

func TestRegisterSources(t *testing.T) {
	r := NewRegistry()
	r.RegisterTracker(staticStats{QuotesProcessed: 10, OrdersDetected: 3, SymbolsTracked: 4, ActiveTrades: 1})

	var c feed.Counters
	c.Messages.Add(5)
	c.Quotes.Add(4)
	c.Dropped.Add(1)
	r.RegisterFeed("ws", &c)
	r.RegisterEmitter(staticEmitter{pending: 3})
	r.RegisterBacklog(func() int { return 9 })

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "whalewatch_tracker_quotes_processed_total 10")
	assert.Contains(t, text, "whalewatch_tracker_orders_detected_total 3")
	assert.Contains(t, text, "whalewatch_tracker_symbols 4")
	assert.Contains(t, text, "whalewatch_tracker_active_trades 1")
	assert.Contains(t, text, `whalewatch_feed_dropped_total{feed="ws"} 1`)
	assert.Contains(t, text, "whalewatch_emitter_deliveries_total 12")
	assert.Contains(t, text, "whalewatch_emitter_pending 3")
	assert.Contains(t, text, "whalewatch_pipeline_backlog 9")
}

func TestRegisterTwoFeeds(t *testing.T) {
	r := NewRegistry()
	var a, b feed.Counters
	r.RegisterFeed("ws", &a)
	assert.NotPanics(t, func() { r.RegisterFeed("stream", &b) })
}
