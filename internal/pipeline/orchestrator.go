// Package pipeline connects quote feeds to the detection core and runs the
// background jobs around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Source produces quotes until its context ends.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// Drainer flushes queued detections on shutdown.
type Drainer interface {
	Close(ctx context.Context) error
}

// Orchestrator runs the feeds, the dispatcher and the archiver, and shuts
// them down in dependency order: feeds first, then the dispatcher drains its
// queues, then the emitter drains to the sinks.
type Orchestrator struct {
	sources      []Source
	dispatcher   *Dispatcher
	drainer      Drainer
	archiver     *Archiver
	archiveCron  string
	drainTimeout time.Duration
	logger       *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(
	sources []Source,
	dispatcher *Dispatcher,
	drainer Drainer,
	archiver *Archiver,
	archiveCron string,
	drainTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &Orchestrator{
		sources:      sources,
		dispatcher:   dispatcher,
		drainer:      drainer,
		archiver:     archiver,
		archiveCron:  archiveCron,
		drainTimeout: drainTimeout,
		logger:       logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a feed fails, then shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline starting", slog.Int("sources", len(o.sources)))

	// The dispatcher outlives ctx so queued quotes are processed after the
	// feeds stop.
	dctx, stopDispatcher := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatcher()
	dispatched := make(chan error, 1)
	go func() { dispatched <- o.dispatcher.Run(dctx) }()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range o.sources {
		g.Go(func() error {
			o.logger.Info("starting feed", slog.String("feed", src.Name()))
			err := src.Run(gctx)
			if gctx.Err() != nil || err == nil {
				return nil
			}
			return fmt.Errorf("%s feed: %w", src.Name(), err)
		})
	}
	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(gctx, o.archiveCron)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}
	err := g.Wait()

	stopDispatcher()
	<-dispatched

	drainCtx, cancel := context.WithTimeout(context.Background(), o.drainTimeout)
	defer cancel()
	if derr := o.drainer.Close(drainCtx); derr != nil {
		o.logger.Error("emitter drain incomplete", slog.String("error", derr.Error()))
		err = errors.Join(err, derr)
	}

	if err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline stopped cleanly")
	return nil
}
