package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// ErrStopped is returned by Submit once the dispatcher stops accepting quotes.
var ErrStopped = errors.New("pipeline: dispatcher stopped")

// QuoteProcessor is the detection core.
type QuoteProcessor interface {
	ProcessQuote(q domain.Quote) tracker.Result
	Stats() tracker.Stats
}

// EventEmitter accepts detections without blocking.
type EventEmitter interface {
	Emit(ev domain.Event) error
}

// QuoteObserver is told how long each quote took to process.
type QuoteObserver interface {
	ObserveQuote(took time.Duration, events int)
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	StatusEvery int64 // log a status line every N quotes; 0 disables
}

// Dispatcher routes quotes to a fixed pool of workers by symbol hash. A
// symbol always lands on the same worker, so its quotes are processed in
// arrival order while different symbols proceed in parallel.
type Dispatcher struct {
	queues      []chan domain.Quote
	proc        QuoteProcessor
	emit        EventEmitter
	observer    QuoteObserver
	statusEvery int64
	logger      *slog.Logger

	mu       sync.RWMutex
	stopped  bool
	stopping chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	processed atomic.Int64
	emitted   atomic.Int64
}

// NewDispatcher creates a Dispatcher. Call Run to start the workers.
func NewDispatcher(cfg DispatcherConfig, proc QuoteProcessor, emit EventEmitter, observer QuoteObserver, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	d := &Dispatcher{
		queues:      make([]chan domain.Quote, cfg.Workers),
		proc:        proc,
		emit:        emit,
		observer:    observer,
		statusEvery: cfg.StatusEvery,
		logger:      logger.With(slog.String("component", "dispatcher")),
		stopping:    make(chan struct{}),
	}
	for i := range d.queues {
		d.queues[i] = make(chan domain.Quote, cfg.QueueSize)
	}
	return d
}

// Submit queues q on its symbol's worker. It blocks while that queue is full
// and returns ErrStopped after shutdown began.
func (d *Dispatcher) Submit(ctx context.Context, q domain.Quote) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	queue := d.queues[xxhash.Sum64String(q.Symbol)%uint64(len(d.queues))]
	select {
	case queue <- q:
		return nil
	case <-d.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled. It then stops
// intake, lets every queued quote finish and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "dispatcher starting", slog.Int("workers", len(d.queues)))
	for i, q := range d.queues {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work(i, q)
		}()
	}

	<-ctx.Done()
	d.Stop()
	d.wg.Wait()

	stats := d.proc.Stats()
	d.logger.Info("dispatcher stopped",
		slog.Int64("quotes", d.processed.Load()),
		slog.Int64("orders_detected", stats.OrdersDetected),
		slog.Int64("trades_tracked", stats.TradesTracked),
	)
	return nil
}

// Stop closes intake. Queued quotes are still processed.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopping)
		d.mu.Lock()
		d.stopped = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
	})
}

// Processed returns the number of quotes the workers have finished.
func (d *Dispatcher) Processed() int64 { return d.processed.Load() }

// Backlog returns the number of quotes waiting across all workers.
func (d *Dispatcher) Backlog() int {
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

func (d *Dispatcher) work(id int, queue <-chan domain.Quote) {
	for q := range queue {
		start := time.Now()
		res := d.proc.ProcessQuote(q)
		events := res.Events()
		for _, ev := range events {
			if err := d.emit.Emit(ev); err != nil {
				d.logger.Error("detection not emitted",
					slog.Int("worker", id),
					slog.String("symbol", ev.Symbol),
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
				continue
			}
			d.emitted.Add(1)
		}
		if d.observer != nil {
			d.observer.ObserveQuote(time.Since(start), len(events))
		}
		if n := d.processed.Add(1); d.statusEvery > 0 && n%d.statusEvery == 0 {
			d.logStatus(n)
		}
	}
}

func (d *Dispatcher) logStatus(n int64) {
	stats := d.proc.Stats()
	d.logger.Info("status",
		slog.Int64("quotes_processed", n),
		slog.Int64("orders_detected", stats.OrdersDetected),
		slog.Int64("duplicates_ignored", stats.DuplicatesIgnored),
		slog.Int64("trades_tracked", stats.TradesTracked),
		slog.Int("active_trades", stats.ActiveTrades),
		slog.Int("symbols_tracked", stats.SymbolsTracked),
		slog.Int("backlog", d.Backlog()),
	)
}
