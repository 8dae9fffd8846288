// Package switchmap derives a fixed set of named reactive outputs from one
// reactive input.
//
// SwitchMap watches an input cell. Every time the input changes, the cleanup
// registered by the previous derivation runs, the projection function is
// called with the new value, and each Reactive entry of the projection is
// watched so that its changes flow into a stable output cell of the same
// name. Only the latest derivation may write outputs: a superseded
// derivation's fields fire into the void until their watchers fall out of
// the retention window (WithRetainedGenerations) and are stopped.
//
//	query := reactive.NewSignal(Query{Term: "go"})
//
//	out := switchmap.SwitchMap(query, func(q Query, setCleanup switchmap.SetCleanup) switchmap.Projection {
//	    results := reactive.NewSignal([]Row(nil))
//	    ctx, cancel := context.WithCancel(context.Background())
//	    setCleanup(cancel)
//	    go fetch(ctx, q, func(rows []Row) {
//	        loop.Dispatch(func() { results.Set(rows) })
//	    })
//	    return switchmap.Projection{
//	        "results": switchmap.Reactive(results),
//	        "term":    switchmap.Plain(q.Term),
//	    }
//	})
//
//	rows, _ := switchmap.Value[[]Row](out, "results")
//
// # Shape
//
// The output key set is taken from the first derivation. What happens when a
// later derivation has a different key set, or flips a key between Reactive
// and Plain, is decided by the ShapePolicy option: ShapeStrict (default)
// panics with a *ShapeError, ShapeLenient logs a warning and keeps the
// outputs of the first shape.
//
// # Threading
//
// Derivations run synchronously inside the write that changed the input.
// Producers on other goroutines should post writes through a reactive.Loop.
package switchmap
