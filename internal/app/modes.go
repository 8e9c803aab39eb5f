package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/whalewatch/internal/config"
	"github.com/alanyoungcy/whalewatch/internal/emitter"
	"github.com/alanyoungcy/whalewatch/internal/feed"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
	"github.com/alanyoungcy/whalewatch/internal/notify"
	"github.com/alanyoungcy/whalewatch/internal/pipeline"
)

// Operating modes select where quotes come from.
const (
	ModeStream = "stream" // streamer websocket
	ModeBus    = "bus"    // Redis quote stream written by another process
	ModeFull   = "full"   // both
)

// buildSources returns the quote feeds for mode and registers their counters
// with reg.
func buildSources(cfg *config.Config, deps *Dependencies, handle feed.QuoteHandler, reg *metrics.Registry, logger *slog.Logger) ([]pipeline.Source, error) {
	mode := strings.ToLower(cfg.Mode)
	var sources []pipeline.Source

	if mode == ModeStream || mode == ModeFull {
		ws := feed.NewWSFeed(cfg.Feed.WSURL, cfg.Feed.Symbols, handle, logger)
		reg.RegisterFeed(ws.Name(), &ws.Counters)
		sources = append(sources, ws)
	}

	if mode == ModeBus || mode == ModeFull {
		if deps.SignalBus == nil {
			return nil, fmt.Errorf("app: mode %q needs redis", cfg.Mode)
		}
		st := feed.NewStreamFeed(
			deps.SignalBus,
			cfg.Feed.QuoteStream,
			cfg.Feed.StartID,
			cfg.Feed.Batch,
			cfg.Feed.PollInterval.Duration,
			handle,
			logger,
		)
		reg.RegisterFeed(st.Name(), &st.Counters)
		sources = append(sources, st)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("app: unsupported mode %q", cfg.Mode)
	}
	return sources, nil
}

// buildSinks assembles the emitter sinks for the enabled backends. Network
// sinks sit behind a circuit breaker so an outage fails fast instead of
// holding a lane for the full sink timeout on every event.
func buildSinks(cfg *config.Config, deps *Dependencies, logger *slog.Logger) []emitter.Sink {
	cooldown := cfg.Emitter.BreakerCooldown.Duration
	var sinks []emitter.Sink

	if deps.DetectionStore != nil {
		sinks = append(sinks, emitter.NewBreakerSink(emitter.NewStoreSink(deps.DetectionStore), cooldown, logger))
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, emitter.NewBusSink(deps.SignalBus, cfg.Emitter.Channel, cfg.Emitter.Stream))
	}
	if alerter := deps.Notifier; alerter != nil && alerter.Enabled() {
		sinks = append(sinks, emitter.NewBreakerSink(
			emitter.NewAlertSink(alerter, deps.RateLimiter, cfg.Notify.SymbolLimit, cfg.Notify.SymbolWindow.Duration, logger),
			cooldown,
			logger,
		))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, emitter.NewLogSink(logger))
	}
	return sinks
}

var _ emitter.Alerter = (*notify.Notifier)(nil)
