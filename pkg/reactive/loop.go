package reactive

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the default capacity of a Loop's dispatch queue.
const DefaultQueueSize = 256

// Loop runs dispatched functions one at a time on a single goroutine.
//
// Reactive writes that originate on other goroutines (timers, network
// handlers, background fetches) should be handed to a Loop so that every
// cell write, watcher callback and effect run happens on the same goroutine.
// After each function the Loop runs the pending effects of its Owner.
type Loop struct {
	owner  *Owner
	logger *slog.Logger

	dispatchCh chan func()
	done       chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// LoopOption configures a Loop.
type LoopOption func(*loopConfig)

type loopConfig struct {
	logger    *slog.Logger
	queueSize int
}

// WithLoopLogger sets the logger used for panics in dispatched functions.
// If not set, slog.Default() is used.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(c *loopConfig) {
		c.logger = logger
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) LoopOption {
	return func(c *loopConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewLoop starts a loop whose functions run under owner.
// owner may be nil, in which case no effects are flushed.
func NewLoop(owner *Owner, opts ...LoopOption) *Loop {
	cfg := loopConfig{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	l := &Loop{
		owner:      owner,
		logger:     cfg.logger,
		dispatchCh: make(chan func(), cfg.queueSize),
		done:       make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

// Owner returns the Owner the loop runs functions under.
func (l *Loop) Owner() *Owner {
	return l.owner
}

func (l *Loop) run() {
	defer l.wg.Done()
	defer dropFrame()

	for {
		select {
		case fn := <-l.dispatchCh:
			l.execute(fn)
		case <-l.done:
			return
		}
	}
}

// execute runs a dispatched function with panic recovery, then flushes
// pending effects.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	WithOwner(l.owner, func() {
		fn()
		if l.owner != nil {
			l.owner.RunPendingEffects()
		}
	})
}

// Dispatch queues fn to run on the loop goroutine. It never blocks.
//
// Example:
//
//	go func() {
//	    rows, err := fetch(ctx, q)
//	    loop.Dispatch(func() {
//	        results.Set(rows)
//	    })
//	}()
func (l *Loop) Dispatch(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.dispatchCh <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	default:
		l.logger.Warn("dispatch queue full, discarding callback")
		return ErrLoopFull
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
// A panic in fn is logged by the loop and Do still returns nil.
// Do must not be called from the loop goroutine itself.
func (l *Loop) Do(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.dispatchCh <- wrapped:
	case <-l.done:
		return ErrLoopClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Close stops the loop. Functions still queued are discarded.
// Close waits for the function currently running, if any.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
	l.wg.Wait()
}
