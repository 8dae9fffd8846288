package switchmap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/vango-dev/switchmap/pkg/reactive"
)

// derivationLog records projection and cleanup calls in order.
type derivationLog struct {
	events []string
}

func (l *derivationLog) add(format string, args ...any) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

// scaledProjection returns {a: cell(v*10), b: plain} and keeps every inner
// cell so tests can fire stale updates.
type scaledProjection struct {
	log    *derivationLog
	inner  []*reactive.Signal[int]
	plainB func(v int) string
}

func (s *scaledProjection) project(v int, setCleanup SetCleanup) Projection {
	s.log.add("project %d", v)
	cell := reactive.NewSignal(v * 10)
	s.inner = append(s.inner, cell)
	setCleanup(func() { s.log.add("cleanup %d", v) })

	b := "const"
	if s.plainB != nil {
		b = s.plainB(v)
	}
	return Projection{
		"a": Reactive[int](cell),
		"b": Plain(b),
	}
}

func mustInt(t *testing.T, out *Output, key string) int {
	t.Helper()
	v, ok := PeekValue[int](out, key)
	if !ok {
		t.Fatalf("output %q is not an int: %#v", key, out.Peek(key))
	}
	return v
}

func TestInitialDerivation(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	if got := mustInt(t, out, "a"); got != 10 {
		t.Errorf("a = %d, want 10", got)
	}
	if b, _ := out.Plain("b"); b != "const" {
		t.Errorf("b = %v, want const", b)
	}
	if k, _ := out.Kind("a"); k != KindReactive {
		t.Errorf("a kind = %v, want reactive", k)
	}
	if k, _ := out.Kind("b"); k != KindPlain {
		t.Errorf("b kind = %v, want plain", k)
	}
	if out.Generation() != 1 {
		t.Errorf("generation = %d, want 1", out.Generation())
	}
}

func TestInputChangeRunsCleanupFirst(t *testing.T) {
	input := reactive.NewSignal(1)
	log := &derivationLog{}
	p := &scaledProjection{log: log, plainB: func(v int) string {
		if v == 1 {
			return "const"
		}
		return fmt.Sprintf("const%d", v)
	}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	input.Set(2)

	if got := mustInt(t, out, "a"); got != 20 {
		t.Errorf("a = %d, want 20", got)
	}
	if b, _ := out.Plain("b"); b != "const2" {
		t.Errorf("b = %v, want const2", b)
	}

	want := []string{"project 1", "cleanup 1", "project 2"}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
}

func TestStaleUpdateDiscarded(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	input.Set(2)
	stale := p.inner[0]
	stale.Set(15)

	if got := mustInt(t, out, "a"); got != 20 {
		t.Errorf("a = %d, want 20 (stale update leaked)", got)
	}
}

func TestFieldUpdatesPropagate(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	cell, _ := out.Cell("a")
	var seen []any
	w := reactive.Watch[any](cell, func(v, _ any) { seen = append(seen, v) })
	defer w.Stop()

	p.inner[0].Set(11)
	if got := mustInt(t, out, "a"); got != 11 {
		t.Errorf("a = %d, want 11", got)
	}

	input.Set(3)
	if got := mustInt(t, out, "a"); got != 30 {
		t.Errorf("a = %d, want 30", got)
	}

	want := []any{11, 30}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("downstream saw %v, want %v", seen, want)
	}
}

func TestOutputCellIsStable(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	before, _ := out.Cell("a")
	input.Set(2)
	input.Set(3)
	after, _ := out.Cell("a")

	if before != after {
		t.Error("output cell identity should not change across derivations")
	}
}

func TestOutputDrivesDownstreamMemoAndEffect(t *testing.T) {
	owner := reactive.NewOwner(nil)
	defer owner.Dispose()

	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	var out *Output
	var effectRuns []int
	reactive.WithOwner(owner, func() {
		out = SwitchMap[int](input, p.project)
		reactive.CreateEffect(func() reactive.Cleanup {
			v, _ := Value[int](out, "a")
			effectRuns = append(effectRuns, v)
			return nil
		})
	})

	doubled := reactive.NewMemo(func() int {
		v, _ := Value[int](out, "a")
		return v * 2
	})
	if doubled.Get() != 20 {
		t.Errorf("memo = %d, want 20", doubled.Get())
	}

	input.Set(4)
	owner.RunPendingEffects()

	if doubled.Get() != 80 {
		t.Errorf("memo = %d, want 80", doubled.Get())
	}
	if want := []int{10, 40}; !reflect.DeepEqual(effectRuns, want) {
		t.Errorf("effect runs = %v, want %v", effectRuns, want)
	}
}

func TestOutputSetIsTransient(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	cell, _ := out.Cell("a")
	cell.Set(99)
	if got := mustInt(t, out, "a"); got != 99 {
		t.Errorf("a = %d, want 99 after local write", got)
	}

	p.inner[0].Set(12)
	if got := mustInt(t, out, "a"); got != 12 {
		t.Errorf("a = %d, want 12 after upstream firing", got)
	}
}

// after any sequence of input changes and inner writes, every output
// equals the latest derivation's field.
func TestFreshnessUnderRandomInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		input := reactive.NewSignal(0)
		p := &scaledProjection{log: &derivationLog{}}
		out := SwitchMap[int](input, p.project)

		for step := 0; step < 50; step++ {
			switch rng.Intn(3) {
			case 0:
				input.Set(input.Peek() + 1 + rng.Intn(3))
			default:
				idx := rng.Intn(len(p.inner))
				p.inner[idx].Set(rng.Intn(1000))
			}

			latest := p.inner[len(p.inner)-1].Peek()
			if got := mustInt(t, out, "a"); got != latest {
				t.Fatalf("run %d step %d: a = %d, want latest derivation's %d", run, step, got, latest)
			}
		}
		out.Dispose()
	}
}

// each cleanup runs exactly once, before the next projection.
func TestCleanupOrdering(t *testing.T) {
	input := reactive.NewSignal(1)
	log := &derivationLog{}
	p := &scaledProjection{log: log}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	for v := 2; v <= 5; v++ {
		input.Set(v)
	}

	want := []string{
		"project 1",
		"cleanup 1", "project 2",
		"cleanup 2", "project 3",
		"cleanup 3", "project 4",
		"cleanup 4", "project 5",
	}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
}

func TestCleanupNotRunWithoutChange(t *testing.T) {
	input := reactive.NewSignal(1)
	log := &derivationLog{}
	p := &scaledProjection{log: log}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	input.Set(1)
	p.inner[0].Set(7)

	if want := []string{"project 1"}; !reflect.DeepEqual(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
}

// plain entries pass through unchanged.
func TestPassthroughFidelity(t *testing.T) {
	type settings struct {
		Limit int
		Tags  []string
	}
	values := map[string]any{
		"int":    42,
		"string": "hello",
		"struct": settings{Limit: 3, Tags: []string{"x", "y"}},
		"slice":  []int{1, 2, 3},
		"map":    map[string]int{"a": 1},
		"nil":    nil,
	}

	input := reactive.NewSignal(0)
	out := SwitchMap[int](input, func(int, SetCleanup) Projection {
		p := Projection{}
		for k, v := range values {
			p[k] = Plain(v)
		}
		return p
	})
	defer out.Dispose()

	for k, want := range values {
		got, ok := out.Plain(k)
		if !ok {
			t.Errorf("missing plain key %q", k)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("plain %q = %#v, want %#v", k, got, want)
		}
	}
}

// the key set is fixed by the first derivation.
func TestKeyStability(t *testing.T) {
	input := reactive.NewSignal(1)
	p := &scaledProjection{log: &derivationLog{}}

	out := SwitchMap[int](input, p.project)
	defer out.Dispose()

	want := []string{"a", "b"}
	for v := 2; v < 6; v++ {
		input.Set(v)
		if got := out.Keys(); !reflect.DeepEqual(got, want) {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
}

// a nil cleanup behaves like no cleanup.
func TestNilCleanup(t *testing.T) {
	tests := []struct {
		name     string
		register func(SetCleanup)
	}{
		{"no registration", func(SetCleanup) {}},
		{"nil registration", func(set SetCleanup) { set(nil) }},
		{"registration cleared", func(set SetCleanup) {
			set(func() { panic("cleared cleanup must not run") })
			set(nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := reactive.NewSignal(1)
			projections := 0
			out := SwitchMap[int](input, func(v int, set SetCleanup) Projection {
				projections++
				tt.register(set)
				return Projection{"v": Plain(v)}
			})
			defer out.Dispose()

			input.Set(2)
			input.Set(3)

			if projections != 3 {
				t.Errorf("projections = %d, want 3", projections)
			}
			if v, _ := out.Plain("v"); v != 3 {
				t.Errorf("v = %v, want 3", v)
			}
		})
	}
}

func TestLastRegisteredCleanupWins(t *testing.T) {
	input := reactive.NewSignal(1)
	var ran []string
	out := SwitchMap[int](input, func(v int, set SetCleanup) Projection {
		set(func() { ran = append(ran, "first") })
		set(func() { ran = append(ran, "second") })
		return Projection{}
	})
	defer out.Dispose()

	input.Set(2)
	if want := []string{"second"}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %v, want %v", ran, want)
	}
}

// context.CancelFunc registers directly as a cleanup.
func TestContextCancelAsCleanup(t *testing.T) {
	input := reactive.NewSignal(1)
	var ctxs []context.Context
	out := SwitchMap[int](input, func(v int, set SetCleanup) Projection {
		ctx, cancel := context.WithCancel(context.Background())
		set(cancel)
		ctxs = append(ctxs, ctx)
		return Projection{"v": Plain(v)}
	})

	if ctxs[0].Err() != nil {
		t.Fatal("first context cancelled before the input changed")
	}
	input.Set(2)
	if ctxs[0].Err() == nil {
		t.Error("first context not cancelled by re-derivation")
	}
	if ctxs[1].Err() != nil {
		t.Error("current context cancelled early")
	}
	out.Dispose()
	if ctxs[1].Err() == nil {
		t.Error("current context not cancelled by Dispose")
	}
}

func TestDeepInputChange(t *testing.T) {
	type query struct {
		Term    string
		Filters []string
	}
	input := reactive.NewSignal(&query{Term: "go"})
	var terms []string

	out := SwitchMap[*query](input, func(q *query, _ SetCleanup) Projection {
		terms = append(terms, q.Term+":"+strings.Join(q.Filters, ","))
		return Projection{"term": Plain(q.Term)}
	})
	defer out.Dispose()

	input.Mutate(func(q **query) { (*q).Filters = append((*q).Filters, "new") })

	if want := []string{"go:", "go:new"}; !reflect.DeepEqual(terms, want) {
		t.Errorf("derivations = %v, want %v", terms, want)
	}
}

func TestProjectionPanicPropagates(t *testing.T) {
	t.Run("first derivation", func(t *testing.T) {
		defer func() {
			if r := recover(); r != "bad input" {
				t.Errorf("recover() = %v, want bad input", r)
			}
		}()
		SwitchMap[int](reactive.NewSignal(0), func(int, SetCleanup) Projection {
			panic("bad input")
		})
		t.Error("SwitchMap should have panicked")
	})

	t.Run("later derivation", func(t *testing.T) {
		input := reactive.NewSignal(0)
		out := SwitchMap[int](input, func(v int, _ SetCleanup) Projection {
			if v == 13 {
				panic("unlucky")
			}
			return Projection{"v": Plain(v)}
		})
		defer out.Dispose()

		func() {
			defer func() {
				if r := recover(); r != "unlucky" {
					t.Errorf("recover() = %v, want unlucky", r)
				}
			}()
			input.Set(13)
		}()

		input.Set(14)
		if v, _ := out.Plain("v"); v != 14 {
			t.Errorf("v = %v, want 14 after recovery", v)
		}
	})
}

func TestShapeStrictPanics(t *testing.T) {
	input := reactive.NewSignal(1)
	out := SwitchMap[int](input, func(v int, _ SetCleanup) Projection {
		p := Projection{"a": Reactive[int](reactive.NewSignal(v))}
		if v > 1 {
			p["extra"] = Plain(true)
			p["a"] = Plain(v)
		}
		return p
	})
	defer out.Dispose()

	var shapeErr *ShapeError
	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			if !ok || !errors.As(err, &shapeErr) {
				t.Fatalf("expected *ShapeError panic, got %#v", r)
			}
		}()
		input.Set(2)
	}()

	if !errors.Is(shapeErr, ErrShapeChanged) {
		t.Error("ShapeError should wrap ErrShapeChanged")
	}
	if !reflect.DeepEqual(shapeErr.Added, []string{"extra"}) {
		t.Errorf("Added = %v, want [extra]", shapeErr.Added)
	}
	if !reflect.DeepEqual(shapeErr.Retyped, []string{"a"}) {
		t.Errorf("Retyped = %v, want [a]", shapeErr.Retyped)
	}
	if shapeErr.Generation != 2 {
		t.Errorf("Generation = %d, want 2", shapeErr.Generation)
	}
	if got := mustInt(t, out, "a"); got != 1 {
		t.Errorf("a = %d, want 1 (last well-shaped value)", got)
	}
}

func TestShapeLenient(t *testing.T) {
	var buf strings.Builder
	logger := newTestLogger(&buf)

	input := reactive.NewSignal(1)
	var cells []*reactive.Signal[int]
	out := SwitchMap[int](input, func(v int, _ SetCleanup) Projection {
		if v == 2 {
			// Drops "a", adds "c"
			return Projection{"b": Plain("two"), "c": Plain("new")}
		}
		cell := reactive.NewSignal(v * 100)
		cells = append(cells, cell)
		return Projection{"a": Reactive[int](cell), "b": Plain(fmt.Sprint(v))}
	}, WithShapePolicy(ShapeLenient), WithLogger(logger))
	defer out.Dispose()

	input.Set(2)

	if got := out.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("keys = %v, want [a b]", got)
	}
	if got := mustInt(t, out, "a"); got != 100 {
		t.Errorf("missing reactive key should keep last value, got %d", got)
	}
	if b, _ := out.Plain("b"); b != "two" {
		t.Errorf("b = %v, want two", b)
	}
	if _, ok := out.Plain("c"); ok {
		t.Error("key absent from the first derivation should not appear")
	}
	if !strings.Contains(buf.String(), "projection shape changed") {
		t.Errorf("expected drift warning, got %q", buf.String())
	}

	// Back to the original shape: outputs are wired again
	input.Set(3)
	if got := mustInt(t, out, "a"); got != 300 {
		t.Errorf("a = %d, want 300", got)
	}
	cells[0].Set(5)
	if got := mustInt(t, out, "a"); got != 300 {
		t.Errorf("stale cell leaked: a = %d", got)
	}
}

func TestPlainCellWarning(t *testing.T) {
	var buf strings.Builder
	out := SwitchMap[int](reactive.NewSignal(1), func(int, SetCleanup) Projection {
		return Projection{"oops": Plain(reactive.NewSignal(1))}
	}, WithLogger(newTestLogger(&buf)))
	defer out.Dispose()

	if !strings.Contains(buf.String(), "will not be tracked") {
		t.Errorf("expected warning for a cell passed as Plain, got %q", buf.String())
	}
}

func TestDispose(t *testing.T) {
	input := reactive.NewSignal(1)
	log := &derivationLog{}
	p := &scaledProjection{log: log}

	out := SwitchMap[int](input, p.project)
	out.Dispose()
	out.Dispose()

	input.Set(2)
	p.inner[0].Set(99)

	want := []string{"project 1", "cleanup 1"}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
	if got := mustInt(t, out, "a"); got != 10 {
		t.Errorf("a = %d, want last value 10", got)
	}
}

func TestOwnerDisposeStopsOperator(t *testing.T) {
	owner := reactive.NewOwner(nil)
	input := reactive.NewSignal(1)
	log := &derivationLog{}
	p := &scaledProjection{log: log}

	reactive.WithOwner(owner, func() {
		_ = SwitchMap[int](input, p.project)
	})

	owner.Dispose()
	input.Set(2)

	want := []string{"project 1", "cleanup 1"}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("events = %v, want %v", log.events, want)
	}
}

func TestValueHelpers(t *testing.T) {
	out := SwitchMap[int](reactive.NewSignal(1), func(v int, _ SetCleanup) Projection {
		return Projection{
			"n":    Reactive[int](reactive.NewSignal(v)),
			"name": Plain("x"),
			"none": Plain(nil),
		}
	})
	defer out.Dispose()

	if n, ok := Value[int](out, "n"); !ok || n != 1 {
		t.Errorf("Value[int](n) = %d, %v", n, ok)
	}
	if _, ok := Value[string](out, "n"); ok {
		t.Error("type mismatch should report false")
	}
	if s, ok := PeekValue[string](out, "name"); !ok || s != "x" {
		t.Errorf("PeekValue[string](name) = %q, %v", s, ok)
	}
	if s, ok := Value[string](out, "none"); !ok || s != "" {
		t.Errorf("nil value should give zero and true, got %q, %v", s, ok)
	}
	if _, ok := Value[int](out, "missing"); ok {
		t.Error("unknown key should report false")
	}

	snap := out.Snapshot()
	if want := map[string]any{"n": 1, "name": "x", "none": nil}; !reflect.DeepEqual(snap, want) {
		t.Errorf("Snapshot() = %v, want %v", snap, want)
	}
}

func TestParseShapePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ShapePolicy
		wantErr bool
	}{
		{"", ShapeStrict, false},
		{"strict", ShapeStrict, false},
		{"Lenient", ShapeLenient, false},
		{"loose", ShapeStrict, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShapePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShapePolicy(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseShapePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
