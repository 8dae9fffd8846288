package reactive

import (
	"runtime"
	"strconv"
	"sync"
)

// frame is the reactive state of one goroutine: who owns new watchers and
// effects, who is collecting dependencies, and the open batch.
type frame struct {
	owner    *Owner
	listener Listener // nil: reads are untracked

	depth  int        // nesting of Batch calls
	queued []Listener // listeners to notify when depth returns to 0
}

// frames maps goroutine id to *frame.
var frames sync.Map

// goid parses the goroutine id from the "goroutine <id> [...]" header of
// runtime.Stack.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = b[len("goroutine "):]
	for i, c := range b {
		if c == ' ' {
			b = b[:i]
			break
		}
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func currentFrame() *frame {
	id := goid()
	if f, ok := frames.Load(id); ok {
		return f.(*frame)
	}
	f, _ := frames.LoadOrStore(id, &frame{})
	return f.(*frame)
}

// dropFrame forgets the calling goroutine's frame. Loop calls it on exit.
func dropFrame() {
	frames.Delete(goid())
}

func getCurrentListener() Listener { return currentFrame().listener }
func getCurrentOwner() *Owner      { return currentFrame().owner }
func getBatchDepth() int           { return currentFrame().depth }
func incrementBatchDepth()         { currentFrame().depth++ }

// decrementBatchDepth closes one Batch level and reports whether it was
// the outermost.
func decrementBatchDepth() bool {
	f := currentFrame()
	f.depth--
	return f.depth == 0
}

func queuePendingUpdate(l Listener) {
	f := currentFrame()
	f.queued = append(f.queued, l)
}

func drainPendingUpdates() []Listener {
	f := currentFrame()
	q := f.queued
	f.queued = nil
	return q
}

// CurrentOwner returns the Owner set by the innermost WithOwner on this
// goroutine, or nil.
func CurrentOwner() *Owner {
	return getCurrentOwner()
}

// WithOwner runs fn with owner as the current owner.
// Effects and watchers created inside fn are stopped when owner is disposed.
//
// Example:
//
//	WithOwner(scope, func() {
//	    out = switchmap.SwitchMap(query, project)
//	})
//	defer scope.Dispose()
func WithOwner(owner *Owner, fn func()) {
	f := currentFrame()
	prev := f.owner
	f.owner = owner
	defer func() { f.owner = prev }()
	fn()
}

// WithListener runs fn with l collecting the cells it reads.
func WithListener(l Listener, fn func()) {
	f := currentFrame()
	prev := f.listener
	f.listener = l
	defer func() { f.listener = prev }()
	fn()
}
