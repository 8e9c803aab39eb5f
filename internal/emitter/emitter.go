// Package emitter hands detections to their sinks off the quote path. Emit
// never blocks on a sink: each event is queued on a lane chosen by symbol and
// delivered by that lane's goroutine, so detections for one symbol reach the
// sinks in the order they were emitted.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Sink is the persistence and alerting boundary. PersistAndAlert is called
// once per event per sink; its error is logged and otherwise ignored.
type Sink interface {
	PersistAndAlert(ctx context.Context, ev domain.Event) error
	Name() string
}

// Observer receives the outcome of every sink call.
type Observer interface {
	ObserveSink(sink string, kind domain.EventKind, took time.Duration, err error)
}

// Config controls lane fan-out and per-call limits.
type Config struct {
	Lanes       int
	SinkTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Lanes <= 0 {
		c.Lanes = 8
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 10 * time.Second
	}
	return c
}

// Emitter fans detections out to a fixed set of sinks.
type Emitter struct {
	sinks    []Sink
	lanes    []*lane
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	emitted   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// Option customises an Emitter.
type Option func(*Emitter)

// WithObserver reports each sink call to o.
func WithObserver(o Observer) Option {
	return func(e *Emitter) { e.observer = o }
}

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) { e.now = now }
}

// New creates an Emitter and starts its lanes. Close must be called to stop
// them.
func New(cfg Config, sinks []Sink, logger *slog.Logger, opts ...Option) *Emitter {
	cfg = cfg.withDefaults()
	e := &Emitter{
		sinks:   sinks,
		lanes:   make([]*lane, cfg.Lanes),
		timeout: cfg.SinkTimeout,
		logger:  logger.With(slog.String("component", "emitter")),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	for i := range e.lanes {
		l := newLane()
		e.lanes[i] = l
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runLane(l)
		}()
	}
	return e
}

// Emit queues ev for delivery and returns immediately. The event is assigned
// an ID and creation time if it has none.
func (e *Emitter) Emit(ev domain.Event) error {
	if e.closed.Load() {
		return domain.ErrEmitterClosed
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = e.now()
	}
	if !e.laneFor(ev.Symbol).push(ev) {
		return domain.ErrEmitterClosed
	}
	e.emitted.Add(1)
	return nil
}

func (e *Emitter) laneFor(symbol string) *lane {
	return e.lanes[xxhash.Sum64String(symbol)%uint64(len(e.lanes))]
}

// Pending returns the number of queued, undelivered events.
func (e *Emitter) Pending() int {
	n := 0
	for _, l := range e.lanes {
		n += l.len()
	}
	return n
}

// Counts returns emitted events, successful sink calls and failed sink calls.
func (e *Emitter) Counts() (emitted, delivered, failed int64) {
	return e.emitted.Load(), e.delivered.Load(), e.failed.Load()
}

// Close stops intake and waits for every queued event to be delivered, or for
// ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		for _, l := range e.lanes {
			l.close()
		}
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.InfoContext(ctx, "emitter drained",
			slog.Int64("emitted", e.emitted.Load()),
			slog.Int64("failed", e.failed.Load()),
		)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("emitter: drain: %w", ctx.Err())
	}
}

func (e *Emitter) runLane(l *lane) {
	for {
		batch, closed := l.take()
		for _, ev := range batch {
			e.deliver(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.signal
	}
}

func (e *Emitter) deliver(ev domain.Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		start := time.Now()
		err := s.PersistAndAlert(ctx, ev)
		cancel()

		if e.observer != nil {
			e.observer.ObserveSink(s.Name(), ev.Kind, time.Since(start), err)
		}
		if err != nil {
			e.failed.Add(1)
			e.logger.Warn("sink failed",
				slog.String("sink", s.Name()),
				slog.String("event_id", ev.ID),
				slog.String("symbol", ev.Symbol),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.delivered.Add(1)
	}
}

// lane is an unbounded FIFO drained by one goroutine.
type lane struct {
	mu     sync.Mutex
	queue  []domain.Event
	closed bool
	signal chan struct{}
}

func newLane() *lane {
	return &lane{signal: make(chan struct{}, 1)}
}

func (l *lane) push(ev domain.Event) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()
	l.notify()
	return true
}

func (l *lane) take() ([]domain.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch, l.closed
}

func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.notify()
}

func (l *lane) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *lane) notify() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}
