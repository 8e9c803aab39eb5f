package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	dialTimeout    = 15 * time.Second
	reconnectDelay = 2 * time.Second
	maxReconnect   = 60 * time.Second
)

// QuoteHandler receives every valid quote in arrival order.
type QuoteHandler func(ctx context.Context, q domain.Quote) error

// Counters tracks what a feed received and discarded.
type Counters struct {
	Messages atomic.Int64
	Quotes   atomic.Int64
	Dropped  atomic.Int64
}

// subscribeRequest is the streamer command that starts LEVELONE updates.
type subscribeRequest struct {
	Requests []streamerCommand `json:"requests"`
}

type streamerCommand struct {
	Service    string            `json:"service"`
	RequestID  string            `json:"requestid"`
	Command    string            `json:"command"`
	Parameters map[string]string `json:"parameters"`
}

// WSFeed streams LEVELONE_EQUITIES quotes over a WebSocket and hands them to
// a QuoteHandler. It reconnects with backoff until its context ends.
type WSFeed struct {
	url     string
	symbols []string
	handle  QuoteHandler
	logger  *slog.Logger
	now     func() time.Time

	Counters Counters

	closeOnce sync.Once
	done      chan struct{}
}

// NewWSFeed creates a WSFeed subscribing to symbols at url.
func NewWSFeed(url string, symbols []string, handle QuoteHandler, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:     url,
		symbols: symbols,
		handle:  handle,
		logger:  logger.With(slog.String("component", "ws_feed")),
		now:     func() time.Time { return time.Now().UTC() },
		done:    make(chan struct{}),
	}
}

// Name identifies the feed in logs.
func (f *WSFeed) Name() string { return "ws" }

// Run connects, subscribes and reads until ctx is cancelled or Close is
// called. Disconnects are retried with exponential backoff.
func (f *WSFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	backoff := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		if time.Since(start) > maxReconnect {
			backoff = reconnectDelay
		}
		f.logger.Warn("quote ws disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxReconnect)
	}
}

// Close stops the feed.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, f.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	connCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-connCtx.Done():
		case <-f.done:
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	write := func(msgType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(msgType, data)
	}

	if err := write(websocket.TextMessage, f.subscription()); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("quote ws subscribed", slog.Int("symbols", len(f.symbols)))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	book := NewLevelOneBook()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := f.dispatch(connCtx, book, raw); err != nil {
			return err
		}
	}
}

// dispatch merges one frame into book and forwards its quotes. Only a
// handler error caused by cancellation ends the connection.
func (f *WSFeed) dispatch(ctx context.Context, book *LevelOneBook, raw []byte) error {
	f.Counters.Messages.Add(1)
	quotes, dropped, err := book.Decode(raw, f.now())
	if err != nil {
		f.logger.Debug("undecodable ws frame", slog.String("error", err.Error()), slog.Int("len", len(raw)))
		return nil
	}
	if dropped > 0 {
		f.Counters.Dropped.Add(int64(dropped))
		f.logger.Debug("invalid quotes dropped", slog.Int("count", dropped))
	}
	for _, q := range quotes {
		if err := f.handle(ctx, q); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("quote handler failed",
				slog.String("symbol", q.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.Counters.Quotes.Add(1)
	}
	return nil
}

func (f *WSFeed) subscription() []byte {
	req := subscribeRequest{Requests: []streamerCommand{{
		Service:   LevelOneService,
		RequestID: "1",
		Command:   "SUBS",
		Parameters: map[string]string{
			"keys":   strings.Join(f.symbols, ","),
			"fields": strings.Join(LevelOneFields, ","),
		},
	}}}
	data, _ := json.Marshal(req)
	return data
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
