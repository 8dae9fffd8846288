package reactive

import (
	"sync"
	"sync/atomic"
)

// watchConfig holds configuration from WatchOptions.
type watchConfig struct {
	immediate bool
	deep      bool
}

// WatchOption is an option for configuring Watch.
type WatchOption func(*watchConfig)

// Immediate makes Watch invoke the callback once, synchronously, before it
// returns. The old value passed on that first call is the zero value.
func Immediate() WatchOption {
	return func(cfg *watchConfig) {
		cfg.immediate = true
	}
}

// Deep makes the watcher fire on every change notification of the source,
// including in-place mutations (Signal.Mutate, CustomCell triggers) that
// leave the value identical. Without Deep, a notification whose new value
// is identical to the last observed one is skipped.
func Deep() WatchOption {
	return func(cfg *watchConfig) {
		cfg.deep = true
	}
}

// Watcher observes a single source and runs a callback when it changes.
// It implements Listener. Callbacks run synchronously and untracked, so
// cells read inside a callback never become dependencies of the watcher.
type Watcher struct {
	id uint64

	// fire re-reads the source and invokes the callback if warranted.
	fire func(initial bool)

	sources sourceSet

	stopped atomic.Bool
}

// Watch subscribes cb to changes of src.
//
// The returned Watcher stays subscribed until Stop is called or, when Watch
// was called under an Owner, until that Owner is disposed.
//
// Example:
//
//	Watch(query, func(q, old Query) {
//	    fmt.Println("query changed from", old, "to", q)
//	}, Immediate(), Deep())
func Watch[T any](src Readable[T], cb func(value, old T), opts ...WatchOption) *Watcher {
	var cfg watchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Watcher{id: nextID()}

	var (
		last T
		mu   sync.Mutex
	)

	w.fire = func(initial bool) {
		value := collect(w, src)

		mu.Lock()
		old := last
		skip := !initial && !cfg.deep && sameValue(any(old), any(value))
		last = value
		mu.Unlock()

		if skip {
			return
		}

		Untracked(func() {
			cb(value, old)
		})
	}

	if owner := getCurrentOwner(); owner != nil {
		owner.OnCleanup(w.Stop)
	}

	if cfg.immediate {
		w.fire(true)
	} else {
		last = collect(w, src)
	}

	return w
}

// collect re-subscribes the watcher by reading the source with the watcher
// as the current listener.
func collect[T any](w *Watcher, src Readable[T]) T {
	w.sources.release(w)

	var v T
	WithListener(w, func() {
		v = src.Get()
	})
	return v
}

// MarkDirty re-reads the source and fires the callback.
// Implements the Listener interface.
func (w *Watcher) MarkDirty() {
	if w.stopped.Load() {
		return
	}
	w.fire(false)
}

// ID returns the unique identifier for this watcher.
func (w *Watcher) ID() uint64 {
	return w.id
}

// Stop unsubscribes the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	if w.stopped.Swap(true) {
		return
	}

	w.sources.release(w)
}

// Stopped reports whether Stop has been called.
func (w *Watcher) Stopped() bool {
	return w.stopped.Load()
}

func (w *Watcher) addSource(source *signalBase) {
	w.sources.add(source)
}
