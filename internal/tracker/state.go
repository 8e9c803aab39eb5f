package tracker

import (
	"sync"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// SymbolState is the previous snapshot the detector diffs against. Price is
// the reference price of the quote that produced it.
type SymbolState struct {
	Bid       float64
	Ask       float64
	BidSize   int64
	AskSize   int64
	Price     float64
	Volume    int64
	UpdatedAt time.Time
}

// SnapshotOf captures the fields of q the detector compares on the next quote.
func SnapshotOf(q domain.Quote) SymbolState {
	return SymbolState{
		Bid:       q.Bid,
		Ask:       q.Ask,
		BidSize:   q.BidSize,
		AskSize:   q.AskSize,
		Price:     q.ReferencePrice(),
		Volume:    q.Volume,
		UpdatedAt: q.Timestamp,
	}
}

type stateSlot struct {
	mu          sync.Mutex
	st          SymbolState
	initialized bool
}

// StateStore keeps the latest snapshot per symbol. Entries are created on
// first sight and live for the lifetime of the process.
type StateStore struct {
	slots *registry[stateSlot]
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{
		slots: newRegistry(func() *stateSlot { return &stateSlot{} }),
	}
}

// Update stores next for symbol and returns the snapshot it replaced. ok is
// false the first time a symbol is seen.
func (s *StateStore) Update(symbol string, next SymbolState) (prev SymbolState, ok bool) {
	slot := s.slots.get(symbol)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	prev, ok = slot.st, slot.initialized
	slot.st = next
	slot.initialized = true
	return prev, ok
}

// Get returns the current snapshot for symbol.
func (s *StateStore) Get(symbol string) (SymbolState, bool) {
	slot, ok := s.slots.lookup(symbol)
	if !ok {
		return SymbolState{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.st, slot.initialized
}

// Len returns the number of symbols seen so far.
func (s *StateStore) Len() int {
	return s.slots.len()
}
