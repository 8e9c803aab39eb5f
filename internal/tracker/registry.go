package tracker

import (
	"sync"
	"sync/atomic"
)

// registry lazily allocates one *T per symbol. Lookups never contend on a
// lock shared by all symbols; each T guards itself.
type registry[T any] struct {
	m     sync.Map // symbol -> *T
	count atomic.Int64
	alloc func() *T
}

func newRegistry[T any](alloc func() *T) *registry[T] {
	return &registry[T]{alloc: alloc}
}

// get returns the entry for symbol, creating it on first use.
func (r *registry[T]) get(symbol string) *T {
	if v, ok := r.m.Load(symbol); ok {
		return v.(*T)
	}
	v, loaded := r.m.LoadOrStore(symbol, r.alloc())
	if !loaded {
		r.count.Add(1)
	}
	return v.(*T)
}

// lookup returns the entry for symbol without creating it.
func (r *registry[T]) lookup(symbol string) (*T, bool) {
	v, ok := r.m.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

func (r *registry[T]) len() int {
	return int(r.count.Load())
}
