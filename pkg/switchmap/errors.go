package switchmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrShapeChanged is the sentinel wrapped by every ShapeError.
var ErrShapeChanged = errors.New("switchmap: projection shape changed")

// ShapeError describes how a derivation's key set differs from the first
// derivation. Under ShapeStrict it is the panic value.
type ShapeError struct {
	// Generation is the derivation that drifted.
	Generation uint64

	// Added are keys absent from the first derivation.
	Added []string

	// Removed are keys of the first derivation missing from this one.
	Removed []string

	// Retyped are keys whose kind changed between Reactive and Plain.
	Retyped []string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	var parts []string
	if len(e.Added) > 0 {
		parts = append(parts, "added "+strings.Join(e.Added, ","))
	}
	if len(e.Removed) > 0 {
		parts = append(parts, "removed "+strings.Join(e.Removed, ","))
	}
	if len(e.Retyped) > 0 {
		parts = append(parts, "retyped "+strings.Join(e.Retyped, ","))
	}
	return fmt.Sprintf("%s in generation %d: %s", ErrShapeChanged, e.Generation, strings.Join(parts, "; "))
}

// Unwrap returns ErrShapeChanged for errors.Is support.
func (e *ShapeError) Unwrap() error {
	return ErrShapeChanged
}

// diffShape compares a projection against the recorded shape.
// Returns nil when they match.
func diffShape(gen uint64, shape map[string]Kind, p Projection) *ShapeError {
	var e ShapeError
	for key, entry := range p {
		kind, ok := shape[key]
		switch {
		case !ok:
			e.Added = append(e.Added, key)
		case kind != entryKind(entry):
			e.Retyped = append(e.Retyped, key)
		}
	}
	for key := range shape {
		if _, ok := p[key]; !ok {
			e.Removed = append(e.Removed, key)
		}
	}
	if len(e.Added)+len(e.Removed)+len(e.Retyped) == 0 {
		return nil
	}
	sort.Strings(e.Added)
	sort.Strings(e.Removed)
	sort.Strings(e.Retyped)
	e.Generation = gen
	return &e
}

// entryKind treats a nil entry as plain.
func entryKind(e Entry) Kind {
	if e == nil {
		return KindPlain
	}
	return e.Kind()
}
