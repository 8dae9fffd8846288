// Package reactive provides the fine-grained reactive runtime that the
// switchmap operator is built on.
//
// Dependencies are tracked automatically at runtime: reading a cell while a
// listener is current subscribes that listener to the cell's changes.
//
// # Core Types
//
// Signal[T] is a writable reactive value:
//
//	count := NewSignal(0)
//	value := count.Get()  // Read (subscribes current listener)
//	count.Set(5)          // Write (notifies subscribers)
//	count.Update(func(n int) int { return n + 1 })
//
// Memo[T] is a cached derived computation:
//
//	doubled := NewMemo(func() int { return count.Get() * 2 })
//
// CustomCell[T] is a cell whose storage is owned by the caller, with explicit
// track and trigger hooks:
//
//	cell := NewCustomCell(func(track, trigger func()) CustomCellHooks[int] {
//	    return CustomCellHooks[int]{
//	        Get: func() int { track(); return store },
//	        Set: func(v int) { store = v; trigger() },
//	    }
//	})
//
// Watch observes a cell and runs a callback on change:
//
//	w := Watch(count, func(v, old int) {
//	    fmt.Println(old, "->", v)
//	}, Immediate(), Deep())
//	defer w.Stop()
//
// # Ownership
//
// Effects and watchers created under an Owner (see WithOwner) are stopped
// when the Owner is disposed.
//
// # Threading
//
// Tracking state is per-goroutine. Watch callbacks run synchronously on the
// goroutine that performed the triggering write. Code that produces values on
// other goroutines should hand them to a Loop with Dispatch so every write
// happens on one goroutine.
package reactive
