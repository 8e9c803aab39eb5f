package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// StreamFeed consumes canonical JSON quotes from a durable stream on the
// signal bus. It starts after the newest entry present at startup.
type StreamFeed struct {
	bus      domain.SignalBus
	stream   string
	batch    int
	interval time.Duration
	handle   QuoteHandler
	logger   *slog.Logger
	now      func() time.Time

	Counters Counters
	lastID   string
}

// NewStreamFeed creates a StreamFeed. startID selects where to begin: "$"
// for entries added after Run starts, "0-0" to replay the retained backlog.
func NewStreamFeed(bus domain.SignalBus, stream, startID string, batch int, interval time.Duration, handle QuoteHandler, logger *slog.Logger) *StreamFeed {
	if batch <= 0 {
		batch = 500
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if startID == "" {
		startID = "$"
	}
	return &StreamFeed{
		bus:      bus,
		stream:   stream,
		batch:    batch,
		interval: interval,
		handle:   handle,
		logger:   logger.With(slog.String("component", "stream_feed"), slog.String("stream", stream)),
		now:      func() time.Time { return time.Now().UTC() },
		lastID:   startID,
	}
}

// Name identifies the feed in logs.
func (f *StreamFeed) Name() string { return "stream" }

// Run polls the stream until ctx is cancelled.
func (f *StreamFeed) Run(ctx context.Context) error {
	if err := f.resolveStart(ctx); err != nil {
		return err
	}
	f.logger.Info("stream feed started", slog.String("from", f.lastID))
	defer f.logger.Info("stream feed stopped")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		n, err := f.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("stream read failed", slog.String("error", err.Error()))
		}
		// A full batch means more is waiting; read again without sleeping.
		if n >= f.batch && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// resolveStart turns "$" into a concrete ID so polling without blocking
// still sees entries added after startup.
func (f *StreamFeed) resolveStart(ctx context.Context) error {
	if f.lastID != "$" {
		return nil
	}
	id, err := f.bus.StreamLastID(ctx, f.stream)
	if err != nil {
		return fmt.Errorf("feed: resolve stream tail: %w", err)
	}
	f.lastID = id
	return nil
}

// Poll reads one batch and forwards its quotes. It returns the number of
// stream entries consumed.
func (f *StreamFeed) Poll(ctx context.Context) (int, error) {
	msgs, err := f.bus.StreamRead(ctx, f.stream, f.lastID, f.batch)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		f.lastID = m.ID
		f.Counters.Messages.Add(1)

		q, err := DecodeQuote(m.Payload, f.now())
		if err != nil {
			f.Counters.Dropped.Add(1)
			f.logger.Debug("invalid quote dropped", slog.String("id", m.ID), slog.String("error", err.Error()))
			continue
		}
		if err := f.handle(ctx, q); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			f.logger.Warn("quote handler failed", slog.String("symbol", q.Symbol), slog.String("error", err.Error()))
			continue
		}
		f.Counters.Quotes.Add(1)
	}
	return len(msgs), nil
}

// LastID returns the ID of the last consumed entry.
func (f *StreamFeed) LastID() string { return f.lastID }
