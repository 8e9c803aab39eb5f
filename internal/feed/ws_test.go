package feed

import (
	"context"
	"encoding/json"
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

func TestWSFeed_SubscribesAndForwardsQuotes(t *testing.T) {
	subs := make(chan subscribeRequest, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subs <- req

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"notify":[{"heartbeat":"1"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[{"service":"LEVELONE_EQUITIES","timestamp":1704207600000,"content":[{"key":"AAPL","1":150.0,"2":150.05,"4":1000,"5":1000,"8":5000},{"key":"BAD","4":-1}]}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":[{"service":"LEVELONE_EQUITIES","timestamp":1704207601000,"content":[{"key":"AAPL","3":150.02}]}]}`))

		// Hold the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	quotes := make(chan domain.Quote, 4)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	f := NewWSFeed(url, []string{"AAPL", "MSFT"}, func(_ context.Context, q domain.Quote) error {
		quotes <- q
		return nil
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case req := <-subs:
		require.Len(t, req.Requests, 1)
		cmd := req.Requests[0]
		assert.Equal(t, LevelOneService, cmd.Service)
		assert.Equal(t, "SUBS", cmd.Command)
		assert.Equal(t, "AAPL,MSFT", cmd.Parameters["keys"])
		assert.Equal(t, "0,1,2,3,4,5,8", cmd.Parameters["fields"])
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	select {
	case q := <-quotes:
		assert.Equal(t, "AAPL", q.Symbol)
		assert.Equal(t, int64(5000), q.Volume)
	case <-time.After(5 * time.Second):
		t.Fatal("no quote forwarded")
	}

	select {
	case q := <-quotes:
		assert.Equal(t, 150.02, q.LastPrice)
		assert.Equal(t, 150.0, q.Bid)
		assert.Equal(t, int64(1000), q.BidSize)
		assert.Equal(t, int64(5000), q.Volume)
	case <-time.After(5 * time.Second):
		t.Fatal("partial update not forwarded")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.Equal(t, int64(1), f.Counters.Dropped.Load())
	assert.Equal(t, int64(2), f.Counters.Quotes.Load())
}

func TestWSFeed_NoSymbols(t *testing.T) {
	f := NewWSFeed("ws://unused", nil, nil, discardLogger())
	assert.NoError(t, f.Run(context.Background()))
}

func TestWSFeed_SubscriptionPayload(t *testing.T) {
	f := NewWSFeed("ws://unused", []string{"SPY"}, nil, discardLogger())
	var req subscribeRequest
	require.NoError(t, json.Unmarshal(f.subscription(), &req))
	assert.Equal(t, "SPY", req.Requests[0].Parameters["keys"])
}
