package tracker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// volumeHistory is the number of prior cumulative volumes the spike flag
// averages over.
const volumeHistory = 4

// accumulation is the in-flight trade window of one symbol.
type accumulation struct {
	mu sync.Mutex

	seen       bool
	prevVolume int64
	history    [volumeHistory]int64
	histNext   int
	histLen    int

	active      bool
	volumeStart int64
	priceStart  float64
	accVolume   int64
	accValue    float64
	startTime   time.Time
}

// spike reports whether delta exceeds half the average of the recorded
// cumulative volumes, then records volume.
func (a *accumulation) spike(volume, delta int64) bool {
	avg := float64(volume)
	if a.histLen > 0 {
		var sum int64
		for i := 0; i < a.histLen; i++ {
			sum += a.history[i]
		}
		avg = float64(sum) / float64(a.histLen)
	}
	a.history[a.histNext] = volume
	a.histNext = (a.histNext + 1) % volumeHistory
	if a.histLen < volumeHistory {
		a.histLen++
	}
	return avg > 0 && float64(delta)/avg*100 > 50
}

func (a *accumulation) reset() {
	a.active = false
	a.volumeStart = 0
	a.priceStart = 0
	a.accVolume = 0
	a.accValue = 0
	a.startTime = time.Time{}
}

// InFlight describes an open accumulation window.
type InFlight struct {
	Active      bool
	VolumeStart int64
	PriceStart  float64
	Volume      int64
	ValueUSD    float64
	StartTime   time.Time
}

// Accumulator sums volume across consecutive quotes of a symbol until the
// traded value reaches the minimum, then emits one DetectedTrade and starts
// over. It keeps its own volume baseline, independent of the Detector.
type Accumulator struct {
	minValue   float64
	instrument domain.Instrument
	states     *registry[accumulation]
	active     atomic.Int64
}

// NewAccumulator creates an Accumulator from cfg.
func NewAccumulator(cfg Config) *Accumulator {
	cfg = cfg.withDefaults()
	return &Accumulator{
		minValue:   cfg.MinTradeValue,
		instrument: cfg.Instrument,
		states:     newRegistry(func() *accumulation { return &accumulation{} }),
	}
}

// Observe feeds one quote into the symbol's window. Quotes without a last
// price or volume carry nothing to accumulate and are ignored. The first
// quote of a symbol only sets the volume baseline.
func (a *Accumulator) Observe(q domain.Quote) (domain.DetectedTrade, bool) {
	if q.LastPrice <= 0 || q.Volume <= 0 {
		return domain.DetectedTrade{}, false
	}
	st := a.states.get(q.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.seen {
		st.seen = true
		st.prevVolume = q.Volume
		st.spike(q.Volume, 0)
		return domain.DetectedTrade{}, false
	}

	delta := q.Volume - st.prevVolume
	prevVolume := st.prevVolume
	st.prevVolume = q.Volume
	spike := st.spike(q.Volume, delta)
	if delta <= 0 {
		return domain.DetectedTrade{}, false
	}

	fresh := !st.active
	if fresh {
		st.active = true
		st.volumeStart = prevVolume
		st.priceStart = q.LastPrice
		st.startTime = q.Timestamp
		a.active.Add(1)
	}
	st.accVolume += delta
	st.accValue += float64(delta) * q.LastPrice
	if st.accValue < a.minValue {
		return domain.DetectedTrade{}, false
	}

	method := domain.TradeMethodAccumulated
	if float64(delta)*q.LastPrice >= a.minValue {
		method = domain.TradeMethodImmediateSpike
	}
	trade := domain.DetectedTrade{
		Symbol:          q.Symbol,
		EntryPrice:      st.priceStart,
		ExitPrice:       q.LastPrice,
		EntryTime:       st.startTime,
		ExitTime:        q.Timestamp,
		Volume:          st.accVolume,
		TradeValueUSD:   st.accValue,
		PriceChange:     q.LastPrice - st.priceStart,
		VolumeSpike:     spike,
		DetectionMethod: method,
		Instrument:      a.instrument,
	}
	if st.priceStart > 0 {
		trade.PriceChangePct = trade.PriceChange / st.priceStart * 100
	}
	st.reset()
	a.active.Add(-1)
	return trade, true
}

// Window returns the open accumulation window for symbol.
func (a *Accumulator) Window(symbol string) InFlight {
	st, ok := a.states.lookup(symbol)
	if !ok {
		return InFlight{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return InFlight{
		Active:      st.active,
		VolumeStart: st.volumeStart,
		PriceStart:  st.priceStart,
		Volume:      st.accVolume,
		ValueUSD:    st.accValue,
		StartTime:   st.startTime,
	}
}

// Active returns the number of symbols with an open window.
func (a *Accumulator) Active() int {
	return int(a.active.Load())
}
