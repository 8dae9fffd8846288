package reactive

import (
	"sync"
	"sync/atomic"
)

// Memo caches the result of compute. A memo nobody subscribes to recomputes
// lazily on the next read after one of its cells changes. A subscribed memo
// recomputes as soon as it is invalidated and tells its subscribers only when
// the new value differs from the old one under its equality (WithEquals, or
// the default equality). A Memo is itself a cell: watchers, effects and other
// memos can depend on it.
type Memo[T any] struct {
	base    signalBase
	compute func() T
	equal   func(T, T) bool

	mu    sync.RWMutex
	value T

	// stale is true until the first compute and after every invalidation.
	stale atomic.Bool
	// busy guards against a memo reading itself.
	busy atomic.Bool
	// computed is set once value holds a real result.
	computed bool

	sources sourceSet
}

// NewMemo creates a memo. compute first runs on the first read.
func NewMemo[T any](compute func() T) *Memo[T] {
	m := &Memo[T]{
		base:    signalBase{id: nextID()},
		compute: compute,
	}
	m.stale.Store(true)
	return m
}

// Get returns the cached value, recomputing if stale, and subscribes the
// current listener.
func (m *Memo[T]) Get() T {
	m.base.track()
	return m.Peek()
}

// Peek is Get without subscribing.
func (m *Memo[T]) Peek() T {
	if m.stale.Load() {
		m.refresh()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// MarkDirty invalidates the cache. With subscribers the memo recomputes
// right away and notifies them only if the value changed.
func (m *Memo[T]) MarkDirty() {
	if m.base.subscriberCount() == 0 {
		m.stale.Store(true)
		return
	}
	if m.refresh() {
		m.base.notifySubscribers()
	}
}

// ID returns the unique identifier for this memo.
func (m *Memo[T]) ID() uint64 {
	return m.base.id
}

// WithEquals sets a custom equality and returns m.
func (m *Memo[T]) WithEquals(fn func(T, T) bool) *Memo[T] {
	m.equal = fn
	return m
}

func (m *Memo[T]) isCell() {}

func (m *Memo[T]) addSource(source *signalBase) {
	m.sources.add(source)
}

func (m *Memo[T]) equals(a, b T) bool {
	if m.equal != nil {
		return m.equal(a, b)
	}
	return defaultEquals(a, b)
}

// refresh recomputes the value and reports whether it changed.
func (m *Memo[T]) refresh() bool {
	if m.busy.Swap(true) {
		// Read of itself during compute: serve the old value
		return false
	}
	defer m.busy.Store(false)

	m.sources.release(m)

	var next T
	WithListener(m, func() {
		next = m.compute()
	})

	m.mu.Lock()
	changed := !m.computed || !m.equals(m.value, next)
	if changed {
		m.value = next
	}
	m.computed = true
	m.mu.Unlock()
	m.stale.Store(false)
	return changed
}
