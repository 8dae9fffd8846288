package reactive

import (
	"slices"
	"sync"
)

// signalBase is the subscriber list shared by every cell type.
type signalBase struct {
	id uint64

	mu   sync.RWMutex
	subs []Listener
}

// indexOf returns the position of the listener with id, or -1.
// Callers hold mu.
func (s *signalBase) indexOf(id uint64) int {
	return slices.IndexFunc(s.subs, func(l Listener) bool { return l.ID() == id })
}

// subscribe adds l once; listeners are identified by ID.
func (s *signalBase) subscribe(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	if s.indexOf(l.ID()) < 0 {
		s.subs = append(s.subs, l)
	}
	s.mu.Unlock()
}

func (s *signalBase) unsubscribe(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	if i := s.indexOf(l.ID()); i >= 0 {
		s.subs = slices.Delete(s.subs, i, i+1)
	}
	s.mu.Unlock()
}

func (s *signalBase) subscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// track subscribes the current listener, if any, and records this cell as
// one of its sources.
func (s *signalBase) track() {
	l := getCurrentListener()
	if l == nil {
		return
	}
	s.subscribe(l)
	if st, ok := l.(sourceTracker); ok {
		st.addSource(s)
	}
}

// notifySubscribers marks every subscriber dirty, or queues them while a
// Batch is open. The list is copied first so listeners may resubscribe.
func (s *signalBase) notifySubscribers() {
	s.mu.RLock()
	subs := slices.Clone(s.subs)
	s.mu.RUnlock()

	notify := Listener.MarkDirty
	if getBatchDepth() > 0 {
		notify = queuePendingUpdate
	}
	for _, l := range subs {
		notify(l)
	}
}

// Signal is a writable cell.
// Get subscribes the current listener (memo computation, effect run,
// watcher source read); Peek does not.
type Signal[T any] struct {
	base signalBase

	mu    sync.RWMutex
	value T

	// equal decides whether a write changed the value; nil means
	// defaultEquals.
	equal func(T, T) bool
}

// NewSignal creates a signal holding initial.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{
		base:  signalBase{id: nextID()},
		value: initial,
	}
}

// Get returns the current value and subscribes the current listener.
func (s *Signal[T]) Get() T {
	v := s.Peek()
	// Tracking happens outside the value lock
	s.base.track()
	return v
}

// Peek returns the current value without subscribing.
func (s *Signal[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores value and notifies subscribers if it differs from the current
// value.
func (s *Signal[T]) Set(value T) {
	s.write(func(T) T { return value })
}

// Update replaces the value with fn(current) under the signal's lock.
func (s *Signal[T]) Update(fn func(T) T) {
	s.write(fn)
}

func (s *Signal[T]) write(fn func(T) T) {
	s.mu.Lock()
	next := fn(s.value)
	changed := !s.equals(s.value, next)
	if changed {
		s.value = next
	}
	s.mu.Unlock()

	if changed {
		s.base.notifySubscribers()
	}
}

// Mutate changes the value in place and always notifies subscribers.
// Use it for pointer, slice or map values whose contents change without
// the container identity changing; shallow watchers ignore such writes,
// deep watchers see them.
func (s *Signal[T]) Mutate(fn func(*T)) {
	s.mu.Lock()
	fn(&s.value)
	s.mu.Unlock()

	s.base.notifySubscribers()
}

// WithEquals sets the equality used by Set and Update and returns s.
func (s *Signal[T]) WithEquals(fn func(T, T) bool) *Signal[T] {
	s.equal = fn
	return s
}

// ID returns the unique identifier for this signal.
func (s *Signal[T]) ID() uint64 {
	return s.base.id
}

func (s *Signal[T]) isCell() {}

func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}
