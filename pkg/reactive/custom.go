package reactive

// CustomCellHooks are the read and write hooks of a CustomCell.
// Get should call track so readers are subscribed; Set should call trigger
// once the new value is stored. A nil Set makes the cell read-only.
type CustomCellHooks[T any] struct {
	Get func() T
	Set func(T)
}

// CustomCell is a reactive cell whose storage lives outside the cell.
// Dependency tracking and change notification are driven explicitly by
// the hooks through the track and trigger functions handed to the factory.
type CustomCell[T any] struct {
	base  signalBase
	hooks CustomCellHooks[T]
}

// NewCustomCell builds a cell from explicit hooks. factory is called once,
// synchronously, with the cell's track and trigger functions.
//
// Example:
//
//	var store int
//	cell := NewCustomCell(func(track, trigger func()) CustomCellHooks[int] {
//	    return CustomCellHooks[int]{
//	        Get: func() int { track(); return store },
//	        Set: func(v int) { store = v; trigger() },
//	    }
//	})
func NewCustomCell[T any](factory func(track, trigger func()) CustomCellHooks[T]) *CustomCell[T] {
	c := &CustomCell[T]{
		base: signalBase{id: nextID()},
	}
	c.hooks = factory(c.base.track, c.base.notifySubscribers)
	return c
}

// Get returns the value produced by the Get hook.
func (c *CustomCell[T]) Get() T {
	if c.hooks.Get == nil {
		var zero T
		return zero
	}
	return c.hooks.Get()
}

// Peek returns the value produced by the Get hook without subscribing.
func (c *CustomCell[T]) Peek() T {
	var v T
	Untracked(func() {
		v = c.Get()
	})
	return v
}

// Set passes value to the Set hook. It is a no-op on read-only cells.
func (c *CustomCell[T]) Set(value T) {
	if c.hooks.Set == nil {
		return
	}
	c.hooks.Set(value)
}

// ID returns the unique identifier for this cell.
func (c *CustomCell[T]) ID() uint64 {
	return c.base.id
}

func (c *CustomCell[T]) isCell() {}
