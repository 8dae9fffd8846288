package reactive

// Batch defers change notifications until fn returns. Each listener
// invalidated inside fn, however many times, is marked dirty once when the
// outermost Batch ends, in the order it was first invalidated.
//
// Example:
//
//	Batch(func() {
//	    result.Set(rows)
//	    status.Set("done")
//	})
//	// An effect reading both cells re-runs once, after both writes
func Batch(fn func()) {
	incrementBatchDepth()
	defer func() {
		if decrementBatchDepth() {
			flushBatch()
		}
	}()
	fn()
}

func flushBatch() {
	queued := drainPendingUpdates()
	seen := make(map[uint64]struct{}, len(queued))
	for _, l := range queued {
		if _, dup := seen[l.ID()]; dup {
			continue
		}
		seen[l.ID()] = struct{}{}
		l.MarkDirty()
	}
}

// Untracked runs fn without a current listener, so the cells it reads are
// not recorded as dependencies. For a single read, use Peek.
func Untracked(fn func()) {
	WithListener(nil, fn)
}
