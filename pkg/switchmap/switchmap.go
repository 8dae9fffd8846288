package switchmap

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/switchmap/pkg/reactive"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// operator is the state behind one SwitchMap call.
type operator[T any] struct {
	cfg     config
	project ProjectFunc[T]

	// owner is the Owner current when SwitchMap was called. Its disposal
	// disposes the Output, which stops every watcher.
	owner *reactive.Owner

	mu sync.Mutex

	// cleanup is the cleanup registered by the current derivation.
	cleanup reactive.Cleanup

	// generation identifies the current derivation. Field watchers capture
	// it when installed and compare it on every firing.
	generation uint64

	current Projection

	// shape is the key set of the first derivation.
	shape map[string]Kind

	// values caches the last value of every reactive output.
	values map[string]any

	// plains holds the current derivation's plain values.
	plains map[string]any

	// triggers notify the output cell of a key, registered when the cell is built.
	triggers map[string]func()

	input  *reactive.Watcher
	fields []fieldWatcher

	disposed bool
}

// fieldWatcher is a watcher on one projection field, tagged with the
// generation that installed it.
type fieldWatcher struct {
	gen uint64
	w   *reactive.Watcher
}

// SwitchMap derives named outputs from input.
//
// project runs once immediately and again every time input changes. Before
// each re-run, the cleanup registered by the previous run is invoked. The
// returned Output has one entry per key of the first projection: reactive
// keys are stable cells fed by the latest projection's cells, plain keys
// expose the latest projection's plain value.
//
// A panic in project propagates to the caller of SwitchMap for the first
// derivation, and to the writer of input for later ones.
func SwitchMap[T any](input reactive.Readable[T], project ProjectFunc[T], opts ...Option) *Output {
	op := &operator[T]{
		cfg:      newConfig(opts),
		project:  project,
		owner:    reactive.CurrentOwner(),
		values:   make(map[string]any),
		plains:   make(map[string]any),
		triggers: make(map[string]func()),
	}

	w := reactive.Watch(input, func(value, _ T) {
		op.derive(value)
	}, reactive.Immediate(), reactive.Deep())

	op.mu.Lock()
	op.input = w
	disposed := op.disposed
	op.mu.Unlock()
	if disposed {
		w.Stop()
	}

	out := op.buildOutput()
	if op.owner != nil {
		op.owner.OnCleanup(out.Dispose)
	}
	return out
}

// setCleanup is handed to the projection.
func (op *operator[T]) setCleanup(fn reactive.Cleanup) {
	op.mu.Lock()
	op.cleanup = fn
	op.mu.Unlock()
}

// derive runs one derivation: cleanup, project, rewire.
func (op *operator[T]) derive(value T) {
	op.mu.Lock()
	if op.disposed {
		op.mu.Unlock()
		return
	}
	cleanup := op.cleanup
	op.cleanup = nil
	next := op.generation + 1
	op.mu.Unlock()

	if cleanup != nil {
		cleanup()
		op.cfg.metrics.recordCleanup(op.cfg.name)
	}

	start := time.Now()
	_, span := op.cfg.tracer.Start(op.cfg.ctx, "switchmap.derive",
		trace.WithAttributes(
			attribute.String("switchmap.name", op.cfg.name),
			attribute.Int64("switchmap.generation", int64(next)),
		),
	)
	defer span.End()

	projection := op.runProjection(value, span)

	op.mu.Lock()
	op.generation++
	gen := op.generation
	op.current = projection
	first := op.shape == nil
	if first {
		op.shape = shapeOf(projection)
	}
	shape := op.shape
	op.mu.Unlock()

	span.SetAttributes(attribute.Int("switchmap.keys", len(projection)))

	if first {
		op.checkPlainCells(projection)
	} else if drift := diffShape(gen, shape, projection); drift != nil {
		op.cfg.metrics.recordShapeDrift(op.cfg.name)
		if op.cfg.shape == ShapeStrict {
			span.RecordError(drift)
			span.SetStatus(codes.Error, drift.Error())
			panic(drift)
		}
		op.cfg.logger.Warn("switchmap: projection shape changed",
			"name", op.cfg.name,
			"generation", gen,
			"added", drift.Added,
			"removed", drift.Removed,
			"retyped", drift.Retyped)
	}

	op.mu.Lock()
	for key, entry := range projection {
		if shape[key] != KindPlain || entryKind(entry) != KindPlain {
			continue
		}
		if pe, ok := entry.(plainEntry); ok {
			op.plains[key] = pe.value
		} else {
			op.plains[key] = nil
		}
	}
	op.mu.Unlock()

	keys := sortedKeys(projection)
	// No owner: field watchers are stopped by pruning or by dispose, never
	// by whichever scope happened to write the input.
	reactive.WithOwner(nil, func() {
		for _, key := range keys {
			re, ok := projection[key].(reactiveEntry)
			if !ok || shape[key] != KindReactive {
				continue
			}
			key := key
			w := re.watch(func(v any) {
				op.fieldChanged(gen, key, v)
			})
			op.track(gen, w)
		}
	})
	op.prune(gen)

	op.cfg.metrics.recordDerivation(op.cfg.name, gen, time.Since(start))
	op.cfg.logger.Debug("switchmap: derived",
		"name", op.cfg.name,
		"generation", gen,
		"keys", keys)
}

// runProjection calls the projection, marking the span failed before a
// panic continues upward.
func (op *operator[T]) runProjection(value T, span trace.Span) Projection {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "projection panicked")
			panic(r)
		}
	}()
	return op.project(value, op.setCleanup)
}

// fieldChanged is the staleness guard: only the current generation may
// write the cache and notify the output cell.
func (op *operator[T]) fieldChanged(gen uint64, key string, value any) {
	op.mu.Lock()
	if gen != op.generation {
		current := op.generation
		op.mu.Unlock()
		op.cfg.metrics.recordStale(op.cfg.name)
		op.cfg.logger.Debug("switchmap: discarded stale update",
			"name", op.cfg.name,
			"key", key,
			"generation", gen,
			"current", current)
		return
	}
	op.values[key] = value
	trigger := op.triggers[key]
	op.mu.Unlock()

	op.cfg.metrics.recordFieldUpdate(op.cfg.name, key)

	// No trigger before the output cell exists (first derivation)
	if trigger != nil {
		trigger()
	}
}

// checkPlainCells warns about plain entries holding a cell: they are passed
// through as values and never tracked.
func (op *operator[T]) checkPlainCells(p Projection) {
	for _, key := range sortedKeys(p) {
		if pe, ok := p[key].(plainEntry); ok && reactive.IsCell(pe.value) {
			op.cfg.logger.Warn("switchmap: plain entry holds a reactive cell; it will not be tracked",
				"name", op.cfg.name,
				"key", key)
		}
	}
}

func (op *operator[T]) track(gen uint64, w *reactive.Watcher) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.disposed {
		w.Stop()
		return
	}
	op.fields = append(op.fields, fieldWatcher{gen: gen, w: w})
}

// prune stops field watchers that fell out of the retention window ending
// at gen.
func (op *operator[T]) prune(gen uint64) {
	op.mu.Lock()
	var expired []*reactive.Watcher
	kept := op.fields[:0]
	for _, f := range op.fields {
		if f.gen+op.cfg.retain <= gen {
			expired = append(expired, f.w)
			continue
		}
		kept = append(kept, f)
	}
	clear(op.fields[len(kept):])
	op.fields = kept
	held := len(kept)
	op.mu.Unlock()

	for _, w := range expired {
		w.Stop()
	}
	op.cfg.metrics.recordWatchers(op.cfg.name, held)
}


// newOutputCell builds the stable cell for a reactive key. Building it
// registers the key's trigger.
func (op *operator[T]) newOutputCell(key string) *reactive.CustomCell[any] {
	return reactive.NewCustomCell(func(track, trigger func()) reactive.CustomCellHooks[any] {
		op.mu.Lock()
		op.triggers[key] = trigger
		op.mu.Unlock()

		return reactive.CustomCellHooks[any]{
			Get: func() any {
				track()
				op.mu.Lock()
				defer op.mu.Unlock()
				return op.values[key]
			},
			// Overwritten by the next upstream firing
			Set: func(v any) {
				op.mu.Lock()
				op.values[key] = v
				op.mu.Unlock()
				trigger()
			},
		}
	})
}

func (op *operator[T]) buildOutput() *Output {
	op.mu.Lock()
	shape := op.shape
	op.mu.Unlock()

	out := &Output{
		state: op,
		kinds: shape,
		cells: make(map[string]*reactive.CustomCell[any]),
	}
	for key, kind := range shape {
		out.keys = append(out.keys, key)
		if kind == KindReactive {
			out.cells[key] = op.newOutputCell(key)
		}
	}
	sort.Strings(out.keys)
	return out
}

func (op *operator[T]) currentGeneration() uint64 {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.generation
}

func (op *operator[T]) plainValue(key string) (any, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()
	v, ok := op.plains[key]
	return v, ok
}

func (op *operator[T]) dispose() {
	op.mu.Lock()
	if op.disposed {
		op.mu.Unlock()
		return
	}
	op.disposed = true
	watchers := make([]*reactive.Watcher, 0, len(op.fields)+1)
	if op.input != nil {
		watchers = append(watchers, op.input)
	}
	for _, f := range op.fields {
		watchers = append(watchers, f.w)
	}
	op.fields = nil
	cleanup := op.cleanup
	op.cleanup = nil
	op.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	op.cfg.metrics.recordWatchers(op.cfg.name, 0)
	if cleanup != nil {
		cleanup()
		op.cfg.metrics.recordCleanup(op.cfg.name)
	}
}

func shapeOf(p Projection) map[string]Kind {
	shape := make(map[string]Kind, len(p))
	for key, entry := range p {
		shape[key] = entryKind(entry)
	}
	return shape
}

func sortedKeys(p Projection) []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
