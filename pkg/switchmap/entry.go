package switchmap

import "github.com/vango-dev/switchmap/pkg/reactive"

// Kind tells whether a projection entry is reactive or plain.
type Kind uint8

const (
	KindPlain Kind = iota + 1
	KindReactive
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindReactive:
		return "reactive"
	default:
		return "unknown"
	}
}

// Entry is one named field of a Projection.
// Build entries with Reactive or Plain.
type Entry interface {
	Kind() Kind
	isEntry()
}

// Projection is the result of one derivation, keyed by output name.
type Projection map[string]Entry

// SetCleanup registers the cleanup to run before the next derivation.
// Each call replaces the previously registered cleanup; nil clears it.
type SetCleanup func(reactive.Cleanup)

// ProjectFunc derives a Projection from the current input value.
type ProjectFunc[T any] func(value T, setCleanup SetCleanup) Projection

type reactiveEntry struct {
	source any
	watch  func(onChange func(value any)) *reactive.Watcher
}

func (reactiveEntry) Kind() Kind { return KindReactive }
func (reactiveEntry) isEntry()   {}

type plainEntry struct {
	value any
}

func (plainEntry) Kind() Kind { return KindPlain }
func (plainEntry) isEntry()   {}

// Reactive wraps a cell whose changes should flow into the output of the
// same name. The cell is watched with immediate and deep semantics.
func Reactive[V any](cell reactive.Readable[V]) Entry {
	return reactiveEntry{
		source: cell,
		watch: func(onChange func(value any)) *reactive.Watcher {
			return reactive.Watch(cell, func(v, _ V) {
				onChange(v)
			}, reactive.Immediate(), reactive.Deep())
		},
	}
}

// Plain wraps a value that is passed through to the output unchanged.
func Plain(value any) Entry {
	return plainEntry{value: value}
}
