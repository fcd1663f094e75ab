package provider

import "sync/atomic"

// Lazy holds a value created on first use and shared afterwards. Creation
// must be idempotent and free of side effects: concurrent first callers may
// each build a value, but only the first one stored wins and every caller
// gets that one.
type Lazy[T any] struct {
	v atomic.Pointer[T]
}

// Get returns the stored value, building it with newFn if none exists yet.
func (l *Lazy[T]) Get(newFn func() T) T {
	if p := l.v.Load(); p != nil {
		return *p
	}
	built := newFn()
	if l.v.CompareAndSwap(nil, &built) {
		return built
	}
	return *l.v.Load()
}
