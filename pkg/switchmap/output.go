package switchmap

import (
	"sync"

	"github.com/vango-dev/switchmap/pkg/reactive"
)

// state is the operator side of an Output.
type state interface {
	currentGeneration() uint64
	plainValue(key string) (any, bool)
	dispose()
}

// Output is the result of SwitchMap. Its key set is fixed by the first
// derivation.
//
// Field watchers of superseded derivations stay subscribed for the last
// few generations (see WithRetainedGenerations) and are then stopped, so
// the number of live watchers stays bounded however often the input
// changes. Dispose stops the rest.
type Output struct {
	state state

	keys  []string
	kinds map[string]Kind
	cells map[string]*reactive.CustomCell[any]

	disposeOnce sync.Once
}

// Keys returns the output keys in sorted order.
func (o *Output) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Kind returns the kind of key, or false if key is not an output.
func (o *Output) Kind(key string) (Kind, bool) {
	k, ok := o.kinds[key]
	return k, ok
}

// Cell returns the stable cell of a reactive key. The same cell is returned
// for the lifetime of the Output.
func (o *Output) Cell(key string) (*reactive.CustomCell[any], bool) {
	c, ok := o.cells[key]
	return c, ok
}

// Plain returns the current derivation's value for a plain key.
func (o *Output) Plain(key string) (any, bool) {
	if o.kinds[key] != KindPlain {
		return nil, false
	}
	return o.state.plainValue(key)
}

// Get returns the value of key. Reactive keys are read through their cell
// and so subscribe the current listener; plain keys are not tracked.
// Unknown keys return nil.
func (o *Output) Get(key string) any {
	if c, ok := o.cells[key]; ok {
		return c.Get()
	}
	v, _ := o.Plain(key)
	return v
}

// Peek is Get without tracking.
func (o *Output) Peek(key string) any {
	if c, ok := o.cells[key]; ok {
		return c.Peek()
	}
	v, _ := o.Plain(key)
	return v
}

// Snapshot returns an untracked copy of every output value.
func (o *Output) Snapshot() map[string]any {
	snap := make(map[string]any, len(o.keys))
	for _, key := range o.keys {
		snap[key] = o.Peek(key)
	}
	return snap
}

// Generation returns the number of derivations run so far.
func (o *Output) Generation() uint64 {
	return o.state.currentGeneration()
}

// Dispose stops watching the input and every derivation's fields, then runs
// the cleanup registered by the current derivation. Output cells keep their
// last values. Dispose is also called when the Owner that was current at
// SwitchMap time is disposed.
func (o *Output) Dispose() {
	o.disposeOnce.Do(o.state.dispose)
}

// Value reads key through its cell (tracked) and asserts it to V.
// The bool is false if key is unknown or holds a value of another type;
// a nil value yields the zero V and true.
func Value[V any](o *Output, key string) (V, bool) {
	return as[V](o, key, o.Get)
}

// PeekValue is Value without tracking.
func PeekValue[V any](o *Output, key string) (V, bool) {
	return as[V](o, key, o.Peek)
}

func as[V any](o *Output, key string, read func(string) any) (V, bool) {
	var zero V
	if _, ok := o.kinds[key]; !ok {
		return zero, false
	}
	v := read(key)
	if v == nil {
		return zero, true
	}
	typed, ok := v.(V)
	return typed, ok
}
