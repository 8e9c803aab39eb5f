package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Compile-time interface checks.
var (
	_ Sink = (*StoreSink)(nil)
	_ Sink = (*BusSink)(nil)
	_ Sink = (*AlertSink)(nil)
	_ Sink = (*BreakerSink)(nil)
	_ Sink = (*LogSink)(nil)
)

// StoreSink persists detections to a DetectionStore.
type StoreSink struct {
	store domain.DetectionStore
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(store domain.DetectionStore) *StoreSink {
	return &StoreSink{store: store}
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "store" }

// PersistAndAlert implements Sink.
func (s *StoreSink) PersistAndAlert(ctx context.Context, ev domain.Event) error {
	switch {
	case ev.Order != nil:
		return s.store.SaveOrder(ctx, ev.ID, *ev.Order)
	case ev.Trade != nil:
		return s.store.SaveTrade(ctx, ev.ID, *ev.Trade)
	}
	return fmt.Errorf("store sink: event %s carries no detection", ev.ID)
}

// BusSink publishes detections for live subscribers and appends them to a
// capped stream for replay.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewBusSink creates a BusSink. An empty channel or stream disables that leg.
func NewBusSink(bus domain.SignalBus, channel, stream string) *BusSink {
	return &BusSink{bus: bus, channel: channel, stream: stream}
}

// Name implements Sink.
func (s *BusSink) Name() string { return "bus" }

// PersistAndAlert implements Sink.
func (s *BusSink) PersistAndAlert(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus sink: marshal event: %w", err)
	}
	var errs []error
	if s.channel != "" {
		if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if s.stream != "" {
		if err := s.bus.StreamAppend(ctx, s.stream, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Alerter renders and delivers a detection alert.
type Alerter interface {
	NotifyDetection(ctx context.Context, ev domain.Event) error
}

// AlertSink sends alerts through an Alerter, capped per symbol by a shared
// rate limiter so replicas do not flood the same channel.
type AlertSink struct {
	alerter Alerter
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewAlertSink creates an AlertSink. A nil limiter or a non-positive limit
// disables throttling.
func NewAlertSink(alerter Alerter, limiter domain.RateLimiter, limit int, window time.Duration, logger *slog.Logger) *AlertSink {
	return &AlertSink{
		alerter: alerter,
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger.With(slog.String("component", "alert_sink")),
	}
}

// Name implements Sink.
func (s *AlertSink) Name() string { return "alert" }

// PersistAndAlert implements Sink.
func (s *AlertSink) PersistAndAlert(ctx context.Context, ev domain.Event) error {
	if s.limiter != nil && s.limit > 0 {
		allowed, err := s.limiter.Allow(ctx, "alert:"+ev.Symbol, s.limit, s.window)
		switch {
		case err != nil:
			// Fail open: an unreachable limiter must not swallow alerts.
			s.logger.WarnContext(ctx, "alert rate limiter unavailable",
				slog.String("symbol", ev.Symbol),
				slog.String("error", err.Error()),
			)
		case !allowed:
			s.logger.DebugContext(ctx, "alert throttled",
				slog.String("symbol", ev.Symbol),
				slog.String("event_id", ev.ID),
			)
			return nil
		}
	}
	return s.alerter.NotifyDetection(ctx, ev)
}

// BreakerSink wraps another sink in a circuit breaker. While the breaker is
// open calls fail fast with domain.ErrSinkOpen.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps next. The breaker trips after three consecutive
// failures, or when more than 5% of at least 20 calls in an interval fail.
func NewBreakerSink(next Sink, cooldown time.Duration, logger *slog.Logger) *BreakerSink {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	st := gobreaker.Settings{
		Name:     next.Name(),
		Interval: 60 * time.Second,
		Timeout:  cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sink breaker state changed",
				slog.String("sink", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerSink{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Name implements Sink.
func (s *BreakerSink) Name() string { return s.next.Name() }

// State returns the breaker state.
func (s *BreakerSink) State() gobreaker.State { return s.cb.State() }

// PersistAndAlert implements Sink.
func (s *BreakerSink) PersistAndAlert(ctx context.Context, ev domain.Event) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.PersistAndAlert(ctx, ev)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", domain.ErrSinkOpen, s.next.Name(), err)
	}
	return err
}

// LogSink writes every detection to a structured log. It is the fallback when
// no other sink is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "log_sink"))}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// PersistAndAlert implements Sink.
func (s *LogSink) PersistAndAlert(ctx context.Context, ev domain.Event) error {
	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("symbol", ev.Symbol),
		slog.String("kind", string(ev.Kind)),
		slog.Float64("value_usd", ev.ValueUSD()),
	}
	switch {
	case ev.Order != nil:
		attrs = append(attrs,
			slog.String("order_type", string(ev.Order.OrderType)),
			slog.Int64("size", ev.Order.SizeShares),
			slog.Float64("price", ev.Order.Price),
			slog.String("method", string(ev.Order.DetectionMethod)),
		)
	case ev.Trade != nil:
		attrs = append(attrs,
			slog.Int64("volume", ev.Trade.Volume),
			slog.Float64("entry_price", ev.Trade.EntryPrice),
			slog.Float64("exit_price", ev.Trade.ExitPrice),
			slog.Float64("price_change_pct", ev.Trade.PriceChangePct),
		)
	default:
		return fmt.Errorf("log sink: event %s carries no detection", ev.ID)
	}
	s.logger.InfoContext(ctx, "whale detected", attrs...)
	return nil
}
