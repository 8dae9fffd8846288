package reactive

import (
	"sync"
	"sync/atomic"
)

// Owner is a disposal scope. Effects and watchers created while an Owner is
// current belong to it, and so do child owners and OnCleanup callbacks.
// Disposing an Owner tears all of them down.
//
// Owners also hold the queue of effects scheduled for the next
// RunPendingEffects; Loop drains it after every dispatched function.
type Owner struct {
	id       uint64
	parent   *Owner
	disposed atomic.Bool

	mu       sync.Mutex
	children []*Owner
	effects  []*Effect
	cleanups []func()
	pending  []*Effect
}

// NewOwner creates an Owner. A nil parent creates a root.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{id: nextID(), parent: parent}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, o)
		parent.mu.Unlock()
	}
	return o
}

// ID returns the unique identifier for this Owner.
func (o *Owner) ID() uint64 {
	return o.id
}

// Parent returns the parent Owner, or nil for a root.
func (o *Owner) Parent() *Owner {
	return o.parent
}

// IsDisposed reports whether Dispose has been called.
func (o *Owner) IsDisposed() bool {
	return o.disposed.Load()
}

// OnCleanup registers fn to run when this Owner is disposed.
// On an already disposed Owner, fn runs immediately.
func (o *Owner) OnCleanup(fn func()) {
	if !o.record(func() { o.cleanups = append(o.cleanups, fn) }) {
		fn()
	}
}

func (o *Owner) registerEffect(e *Effect) {
	o.record(func() { o.effects = append(o.effects, e) })
}

func (o *Owner) scheduleEffect(e *Effect) {
	o.record(func() { o.pending = append(o.pending, e) })
}

// record runs add under the lock unless the owner is disposed.
func (o *Owner) record(add func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed.Load() {
		return false
	}
	add()
	return true
}

func (o *Owner) childList() []*Owner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Owner(nil), o.children...)
}

// RunPendingEffects runs the scheduled effects of this owner, then of its
// children, depth first.
func (o *Owner) RunPendingEffects() {
	if o.disposed.Load() {
		return
	}

	o.mu.Lock()
	queue := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, e := range queue {
		// A re-run in between may already have cleared the flag
		if e.pending.Load() {
			e.run()
		}
	}

	for _, child := range o.childList() {
		child.RunPendingEffects()
	}
}

// HasPendingEffects reports whether this owner or a descendant has
// scheduled effects.
func (o *Owner) HasPendingEffects() bool {
	if o.disposed.Load() {
		return false
	}

	o.mu.Lock()
	n := len(o.pending)
	o.mu.Unlock()
	if n > 0 {
		return true
	}

	for _, child := range o.childList() {
		if child.HasPendingEffects() {
			return true
		}
	}
	return false
}

// Dispose tears the scope down: children (newest first), then effects, then
// cleanups in reverse registration order. Later calls do nothing.
func (o *Owner) Dispose() {
	o.mu.Lock()
	if o.disposed.Swap(true) {
		o.mu.Unlock()
		return
	}
	children, effects, cleanups := o.children, o.effects, o.cleanups
	o.children, o.effects, o.cleanups, o.pending = nil, nil, nil, nil
	o.mu.Unlock()

	if p := o.parent; p != nil {
		p.mu.Lock()
		for i, c := range p.children {
			if c == o {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}
	for _, e := range effects {
		e.Dispose()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
