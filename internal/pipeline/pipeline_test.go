package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/switchmap/internal/errors"
	"github.com/vango-dev/switchmap/pkg/reactive"
	"github.com/vango-dev/switchmap/pkg/switchmap"
)

func newLoop(t *testing.T) *reactive.Loop {
	t.Helper()
	owner := reactive.NewOwner(nil)
	loop := reactive.NewLoop(owner, reactive.WithLoopLogger(discardLogger()))
	t.Cleanup(func() {
		loop.Close()
		owner.Dispose()
	})
	return loop
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(t *testing.T, p *Pipeline) Snapshot {
	t.Helper()
	s, err := p.Snapshot()
	require.NoError(t, err)
	return s
}

func TestPipelineLookup(t *testing.T) {
	p, err := New(newLoop(t), Options{Initial: 3, Delay: 5 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	defer p.Close()

	s := snapshot(t, p)
	assert.Equal(t, uint64(1), s.Generation)
	assert.Equal(t, 3, s.Values[KeyQuery])
	assert.Equal(t, StatusPending, s.Values[KeyStatus])
	assert.Equal(t, 0, s.Values[KeyResult])

	require.Eventually(t, func() bool {
		return snapshot(t, p).Values[KeyStatus] == StatusDone
	}, time.Second, time.Millisecond)
	assert.Equal(t, 9, snapshot(t, p).Values[KeyResult])
}

func TestPipelineOutputShape(t *testing.T) {
	p, err := New(newLoop(t), Options{Logger: discardLogger()})
	require.NoError(t, err)
	defer p.Close()

	out := p.Output()
	assert.Equal(t, []string{KeyQuery, KeyResult, KeyStatus}, out.Keys())

	kind, ok := out.Kind(KeyQuery)
	require.True(t, ok)
	assert.Equal(t, switchmap.KindPlain, kind)

	kind, ok = out.Kind(KeyResult)
	require.True(t, ok)
	assert.Equal(t, switchmap.KindReactive, kind)
}

func TestPipelineSwitchCancelsPrevious(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := switchmap.NewMetrics(switchmap.WithRegistry(reg))

	p, err := New(newLoop(t), Options{
		Initial:   1,
		Delay:     100 * time.Millisecond,
		Logger:    discardLogger(),
		SwitchMap: []switchmap.Option{switchmap.WithMetrics(metrics)},
	})
	require.NoError(t, err)
	defer p.Close()

	var (
		mu      sync.Mutex
		results []any
	)
	stop, err := p.Subscribe(func(c Change) {
		if c.Key == KeyResult {
			mu.Lock()
			results = append(results, c.Value)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, p.SetQuery(2))
	require.NoError(t, p.SetQuery(3))

	require.Eventually(t, func() bool {
		return snapshot(t, p).Values[KeyStatus] == StatusDone
	}, 2*time.Second, 5*time.Millisecond)

	s := snapshot(t, p)
	assert.Equal(t, uint64(3), s.Generation)
	assert.Equal(t, 3, s.Values[KeyQuery])
	assert.Equal(t, 9, s.Values[KeyResult])

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, results, 1)
	assert.NotContains(t, results, 4)
	assert.Contains(t, results, 9)
}

func TestPipelineSubscribe(t *testing.T) {
	p, err := New(newLoop(t), Options{Initial: 1, Delay: 5 * time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool {
		return snapshot(t, p).Values[KeyStatus] == StatusDone
	}, time.Second, time.Millisecond)

	changes := make(chan Change, 16)
	stop, err := p.Subscribe(func(c Change) { changes <- c })
	require.NoError(t, err)

	require.NoError(t, p.SetQuery(4))

	seen := map[string]any{}
	timeout := time.After(time.Second)
	for seen[KeyQuery] != 4 || seen[KeyResult] != 16 || seen[KeyStatus] != StatusDone {
		select {
		case c := <-changes:
			seen[c.Key] = c.Value
			assert.GreaterOrEqual(t, c.Generation, uint64(2))
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	stop()
	require.NoError(t, p.SetQuery(5))
	require.Eventually(t, func() bool {
		return snapshot(t, p).Values[KeyStatus] == StatusDone
	}, time.Second, time.Millisecond)

	// Drain anything queued before stop
	for {
		select {
		case c := <-changes:
			assert.NotEqual(t, 5, c.Value)
			assert.NotEqual(t, 25, c.Value)
			continue
		default:
		}
		break
	}
}

func TestPipelineClose(t *testing.T) {
	p, err := New(newLoop(t), Options{Delay: time.Hour, Logger: discardLogger()})
	require.NoError(t, err)

	p.Close()

	require.NoError(t, p.SetQuery(7))
	s := snapshot(t, p)
	assert.Equal(t, uint64(1), s.Generation, "disposed output stops deriving")
	assert.Equal(t, StatusPending, s.Values[KeyStatus])
}

func TestPipelineLoopClosed(t *testing.T) {
	loop := reactive.NewLoop(nil)
	loop.Close()

	_, err := New(loop, Options{})
	assert.ErrorIs(t, err, reactive.ErrLoopClosed)
}

// failingTracer panics when a span starts, which fails the first derivation.
type failingTracer struct {
	noop.Tracer
}

func (failingTracer) Start(context.Context, string, ...trace.SpanStartOption) (context.Context, trace.Span) {
	panic("tracer unavailable")
}

func TestPipelineInitialDerivationFails(t *testing.T) {
	p, err := New(newLoop(t), Options{
		Logger:    discardLogger(),
		SwitchMap: []switchmap.Option{switchmap.WithTracer(failingTracer{})},
	})
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.HasCode(err, "S061"))
}

func TestPipelineNoLookupAfterClose(t *testing.T) {
	p, err := New(newLoop(t), Options{Delay: time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)
	p.Close()

	registered := false
	projection := p.project(6, func(reactive.Cleanup) { registered = true })
	p.wg.Wait()

	assert.False(t, registered, "no lookup started, so no cancel registered")
	assert.Len(t, projection, 3)
}

func TestPipelineCloseDuringQueries(t *testing.T) {
	p, err := New(newLoop(t), Options{Delay: time.Millisecond, Logger: discardLogger()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for q := 0; q < 50; q++ {
				if p.SetQuery(base*100+q) != nil {
					return
				}
			}
		}(i)
	}

	p.Close()
	wg.Wait()
	p.wg.Wait()
}
