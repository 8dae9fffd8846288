package reactive

import "sync/atomic"

// Effect represents a reactive side effect that runs when its dependencies change.
//
// Effects run immediately when created and re-run whenever any cell they
// read during execution changes. An effect created under an Owner is queued
// on that Owner and re-runs on the next RunPendingEffects; an effect with no
// Owner re-runs synchronously inside the write that invalidated it.
type Effect struct {
	id uint64

	fn func() Cleanup

	// cleanup is the cleanup function from the last run.
	cleanup Cleanup

	sources sourceSet

	owner *Owner

	// pending indicates the effect is scheduled for re-run.
	pending atomic.Bool

	disposed atomic.Bool
}

// MarkDirty marks the effect as needing to re-run.
// Implements the Listener interface.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}

	if e.owner == nil {
		e.run()
		return
	}

	// CAS ensures we only schedule once
	if e.pending.CompareAndSwap(false, true) {
		e.owner.scheduleEffect(e)
	}
}

// ID returns the unique identifier for this effect.
func (e *Effect) ID() uint64 {
	return e.id
}

// run executes the effect function.
func (e *Effect) run() {
	if e.disposed.Load() {
		return
	}

	e.pending.Store(false)

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sources.release(e)

	WithListener(e, func() {
		e.cleanup = e.fn()
	})
}

func (e *Effect) addSource(source *signalBase) {
	e.sources.add(source)
}

// Dispose runs the last cleanup and unsubscribes from all sources.
// Safe to call more than once.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sources.release(e)
}

// CreateEffect creates and runs a new effect within the current owner context.
// If fn returns a Cleanup, it is called before the effect re-runs or when the
// effect is disposed.
//
// Example:
//
//	CreateEffect(func() Cleanup {
//	    fmt.Println("Count is:", count.Get())
//	    return func() { fmt.Println("Cleanup") }
//	})
func CreateEffect(fn func() Cleanup) *Effect {
	owner := getCurrentOwner()

	e := &Effect{
		id:    nextID(),
		fn:    fn,
		owner: owner,
	}

	if owner != nil {
		owner.registerEffect(e)
	}

	e.run()

	return e
}
