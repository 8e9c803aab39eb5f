// Package metrics exposes pipeline, detector and sink health as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/feed"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

const namespace = "whalewatch"

// StatsSource is satisfied by *tracker.Tracker.
type StatsSource interface {
	Stats() tracker.Stats
}

// EmitterSource is satisfied by *emitter.Emitter.
type EmitterSource interface {
	Pending() int
	Counts() (emitted, delivered, failed int64)
}

// Registry holds every collector the service exports.
type Registry struct {
	reg *prometheus.Registry

	SinkDuration *prometheus.HistogramVec
	SinkFailures *prometheus.CounterVec
	QuoteLatency prometheus.Histogram
	Detections   prometheus.Counter
}

// NewRegistry creates the registry with Go runtime and process collectors
// plus the event-driven collectors below.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		SinkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_duration_seconds",
				Help:      "Time spent delivering one event to one sink",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"sink", "kind", "result"},
		),

		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_failures_total",
				Help:      "Deliveries that returned an error, by sink",
			},
			[]string{"sink", "kind"},
		),

		QuoteLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quote_process_seconds",
				Help:      "Detector time per quote",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
		),

		Detections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Detection events produced by pipeline workers",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SinkDuration,
		r.SinkFailures,
		r.QuoteLatency,
		r.Detections,
	)
	return r
}

// ObserveSink records one sink delivery.
func (r *Registry) ObserveSink(sink string, kind domain.EventKind, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		r.SinkFailures.WithLabelValues(sink, string(kind)).Inc()
	}
	r.SinkDuration.WithLabelValues(sink, string(kind), result).Observe(took.Seconds())
}

// ObserveQuote records one processed quote.
func (r *Registry) ObserveQuote(took time.Duration, events int) {
	r.QuoteLatency.Observe(took.Seconds())
	if events > 0 {
		r.Detections.Add(float64(events))
	}
}

// RegisterTracker exports the detector counters read from src at scrape time.
func (r *Registry) RegisterTracker(src StatsSource) {
	counter := func(name, help string, pick func(tracker.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracker", Name: name, Help: help,
		}, func() float64 { return float64(pick(src.Stats())) })
	}
	gauge := func(name, help string, pick func(tracker.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracker", Name: name, Help: help,
		}, func() float64 { return pick(src.Stats()) })
	}

	r.reg.MustRegister(
		counter("quotes_processed_total", "Quotes seen by the detector",
			func(s tracker.Stats) int64 { return s.QuotesProcessed }),
		counter("orders_detected_total", "Large orders emitted",
			func(s tracker.Stats) int64 { return s.OrdersDetected }),
		counter("duplicates_ignored_total", "Candidate orders suppressed as duplicates",
			func(s tracker.Stats) int64 { return s.DuplicatesIgnored }),
		counter("trades_tracked_total", "Consolidated large trades emitted",
			func(s tracker.Stats) int64 { return s.TradesTracked }),
		gauge("symbols", "Symbols with quote state",
			func(s tracker.Stats) float64 { return float64(s.SymbolsTracked) }),
		gauge("active_trades", "Symbols with an open accumulation window",
			func(s tracker.Stats) float64 { return float64(s.ActiveTrades) }),
	)
}

// RegisterFeed exports a feed's counters labelled with its name.
func (r *Registry) RegisterFeed(name string, c *feed.Counters) {
	labels := prometheus.Labels{"feed": name}
	r.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "messages_total",
			Help: "Raw messages received", ConstLabels: labels,
		}, func() float64 { return float64(c.Messages.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "quotes_total",
			Help: "Quotes accepted into the pipeline", ConstLabels: labels,
		}, func() float64 { return float64(c.Quotes.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "dropped_total",
			Help: "Quotes rejected by validation", ConstLabels: labels,
		}, func() float64 { return float64(c.Dropped.Load()) }),
	)
}

// RegisterEmitter exports emitter throughput and backlog.
func (r *Registry) RegisterEmitter(src EmitterSource) {
	count := func(name, help string, pick func(e, d, f int64) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "emitter", Name: name, Help: help,
		}, func() float64 { return float64(pick(src.Counts())) })
	}
	r.reg.MustRegister(
		count("events_total", "Events accepted by the emitter",
			func(e, _, _ int64) int64 { return e }),
		count("deliveries_total", "Successful sink deliveries",
			func(_, d, _ int64) int64 { return d }),
		count("failures_total", "Failed sink deliveries",
			func(_, _, f int64) int64 { return f }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "emitter", Name: "pending",
			Help: "Events queued and not yet delivered",
		}, func() float64 { return float64(src.Pending()) }),
	)
}

// RegisterBacklog exports the dispatcher queue depth.
func (r *Registry) RegisterBacklog(backlog func() int) {
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "pipeline", Name: "backlog",
		Help: "Quotes waiting for a worker",
	}, func() float64 { return float64(backlog()) }))
}

// Gatherer returns the underlying registry for scraping in tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
