package reactive

// Listener is anything that can be notified when a dependency changes.
// This interface is implemented by memos, effects and watchers.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies has changed.
	// For memos, this invalidates the cached value.
	// For effects, this schedules the effect to re-run.
	// For watchers, this re-reads the source and fires the callback.
	MarkDirty()

	// ID returns a unique identifier for this listener.
	// Used for deduplication during batch processing.
	ID() uint64
}

// Cleanup is a function returned by effects to clean up resources.
// It is called before the effect re-runs and when the effect is disposed.
type Cleanup = func()

// Readable is a reactive value.
// Get subscribes the current listener; Peek does not.
type Readable[T any] interface {
	Get() T
	Peek() T
}

// Cell is a Readable that can also be written.
type Cell[T any] interface {
	Readable[T]
	Set(T)
}

// sourceTracker is implemented by listeners that keep a list of the cells
// they read so they can unsubscribe on re-run or disposal.
type sourceTracker interface {
	addSource(source *signalBase)
}

// cellMarker is implemented by every cell type in this package.
type cellMarker interface {
	isCell()
}

// IsCell reports whether v is a reactive cell created by this package
// (Signal, Memo or CustomCell).
func IsCell(v any) bool {
	_, ok := v.(cellMarker)
	return ok
}
