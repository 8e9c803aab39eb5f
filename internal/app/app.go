// Package app provides the top-level application lifecycle for whalewatch. It
// wires the enabled backends, builds the detection pipeline for the configured
// mode and runs it alongside the HTTP API until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalewatch/internal/config"
	"github.com/alanyoungcy/whalewatch/internal/emitter"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
	"github.com/alanyoungcy/whalewatch/internal/pipeline"
	"github.com/alanyoungcy/whalewatch/internal/server"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
	"github.com/alanyoungcy/whalewatch/internal/server/ws"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the pipeline and the API server, and
// blocks until ctx is cancelled or a component fails. On return it runs all
// registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	p, err := a.build(deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.orchestrator.Run(gctx) })
	if p.hub != nil {
		g.Go(func() error { return p.hub.Run(gctx) })
	}
	if p.server != nil {
		g.Go(func() error { return p.server.Run(gctx) })
	}
	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// pipelineParts holds everything Run starts.
type pipelineParts struct {
	tracker      *tracker.Tracker
	emitter      *emitter.Emitter
	dispatcher   *pipeline.Dispatcher
	orchestrator *pipeline.Orchestrator
	hub          *ws.Hub
	server       *server.Server
	metrics      *metrics.Registry
}

// build assembles the detection pipeline and the API from deps.
func (a *App) build(deps *Dependencies) (*pipelineParts, error) {
	cfg := a.cfg
	logger := a.logger
	reg := metrics.NewRegistry()

	trk := tracker.New(cfg.Detector.Tracker(), logger)
	reg.RegisterTracker(trk)

	emit := emitter.New(emitter.Config{
		Lanes:       cfg.Emitter.Lanes,
		SinkTimeout: cfg.Emitter.SinkTimeout.Duration,
	}, buildSinks(cfg, deps, logger), logger, emitter.WithObserver(reg))
	reg.RegisterEmitter(emit)

	dispatcher := pipeline.NewDispatcher(pipeline.DispatcherConfig{
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		StatusEvery: cfg.Pipeline.StatusEvery,
	}, trk, emit, reg, logger)
	reg.RegisterBacklog(dispatcher.Backlog)

	sources, err := buildSources(cfg, deps, dispatcher.Submit, reg, logger)
	if err != nil {
		return nil, err
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, deps.LockManager, cfg.Archive.RetentionDays, logger)
	}

	p := &pipelineParts{
		tracker:    trk,
		emitter:    emit,
		dispatcher: dispatcher,
		orchestrator: pipeline.NewOrchestrator(
			sources, dispatcher, emit, archiver, cfg.Archive.Cron,
			cfg.Pipeline.DrainTimeout.Duration, logger,
		),
		metrics: reg,
	}

	if cfg.Server.Enabled {
		a.buildServer(p, deps)
	}
	return p, nil
}

// buildServer attaches the HTTP API and, when a signal bus is available, the
// live detection hub.
func (a *App) buildServer(p *pipelineParts, deps *Dependencies) {
	cfg := a.cfg
	mode := strings.ToLower(cfg.Mode)

	if deps.SignalBus != nil && cfg.Emitter.Channel != "" {
		p.hub = ws.NewHub(deps.SignalBus, cfg.Emitter.Channel, mode, a.logger)
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(mode, deps.Checks, a.logger),
		Stats:   handler.NewStatsHandler(p.tracker, p.emitter, p.dispatcher.Backlog),
		Metrics: p.metrics.Handler(),
	}
	if deps.DetectionStore != nil {
		handlers.Detections = handler.NewDetectionHandler(deps.DetectionStore, deps.AuditStore, deps.BlobReader, a.logger)
	}

	p.server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
	}, handlers, p.hub, deps.RateLimiter, a.logger)
}
