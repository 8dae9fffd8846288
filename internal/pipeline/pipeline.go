package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-dev/switchmap/internal/errors"
	"github.com/vango-dev/switchmap/pkg/reactive"
	"github.com/vango-dev/switchmap/pkg/switchmap"
)

// Output keys.
const (
	KeyQuery  = "query"
	KeyStatus = "status"
	KeyResult = "result"
)

// Status values.
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// DefaultDelay is the default simulated lookup latency.
const DefaultDelay = 50 * time.Millisecond

// Options configures a Pipeline.
type Options struct {
	// Initial is the first query.
	Initial int

	// Delay is the simulated lookup latency. Zero means DefaultDelay.
	Delay time.Duration

	// Logger is used for lookup and dispatch logging. nil means slog.Default().
	Logger *slog.Logger

	// SwitchMap holds extra operator options (metrics, tracer, shape policy).
	SwitchMap []switchmap.Option
}

// Change describes one update of a reactive output.
type Change struct {
	Key        string `json:"key"`
	Value      any    `json:"value"`
	Generation uint64 `json:"generation"`
}

// Snapshot is the state of every output at one point in time.
type Snapshot struct {
	Generation uint64         `json:"generation"`
	Values     map[string]any `json:"values"`
}

// Pipeline is an asynchronous switch-map pipeline running on a Loop.
type Pipeline struct {
	loop   *reactive.Loop
	logger *slog.Logger
	delay  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders lookup starts against Close.
	mu     sync.Mutex
	closed bool

	input *reactive.Signal[int]
	out   *switchmap.Output

	// subs is only touched on the loop goroutine.
	subs   map[uint64]func(Change)
	nextID uint64
}

// New builds the pipeline on loop and runs the first derivation.
// The pipeline's watchers belong to the loop's Owner.
func New(loop *reactive.Loop, opts Options) (*Pipeline, error) {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		loop:   loop,
		logger: opts.Logger,
		delay:  opts.Delay,
		ctx:    ctx,
		cancel: cancel,
		input:  reactive.NewSignal(opts.Initial),
		subs:   make(map[uint64]func(Change)),
	}

	smOpts := append([]switchmap.Option{
		switchmap.WithName("pipeline"),
		switchmap.WithLogger(opts.Logger),
	}, opts.SwitchMap...)

	err := loop.Do(func() {
		p.out = switchmap.SwitchMap[int](p.input, p.project, smOpts...)
	})
	if err != nil {
		cancel()
		return nil, err
	}
	// Do recovers panics, so a failed first derivation shows up as no output
	if p.out == nil {
		cancel()
		return nil, errors.New("S061")
	}
	return p, nil
}

func (p *Pipeline) project(query int, setCleanup switchmap.SetCleanup) switchmap.Projection {
	status := reactive.NewSignal(StatusPending)
	result := reactive.NewSignal(0)

	projection := switchmap.Projection{
		KeyQuery:  switchmap.Plain(query),
		KeyStatus: switchmap.Reactive[string](status),
		KeyResult: switchmap.Reactive[int](result),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Debug("lookup skipped, pipeline closed", "query", query)
		return projection
	}

	ctx, cancel := context.WithCancel(p.ctx)
	setCleanup(cancel)

	p.wg.Add(1)
	go p.lookup(ctx, query, status, result)

	return projection
}

func (p *Pipeline) lookup(ctx context.Context, query int, status *reactive.Signal[string], result *reactive.Signal[int]) {
	defer p.wg.Done()

	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.logger.Debug("lookup cancelled", "query", query)
		return
	case <-timer.C:
	}

	err := p.loop.Dispatch(func() {
		reactive.Batch(func() {
			result.Set(query * query)
			status.Set(StatusDone)
		})
	})
	if err != nil {
		p.logger.Warn("lookup result dropped", "query", query, "error", err)
	}
}

// Output returns the operator's output.
func (p *Pipeline) Output() *switchmap.Output {
	return p.out
}

// SetQuery changes the query on the loop goroutine and waits for the new
// derivation to be installed. Subscribers receive a KeyQuery change.
func (p *Pipeline) SetQuery(query int) error {
	return p.loop.Do(func() {
		p.input.Set(query)

		change := Change{
			Key:        KeyQuery,
			Value:      p.out.Peek(KeyQuery),
			Generation: p.out.Generation(),
		}
		for _, fn := range p.subs {
			fn(change)
		}
	})
}

// Snapshot reads every output on the loop goroutine.
func (p *Pipeline) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := p.loop.Do(func() {
		s = Snapshot{
			Generation: p.out.Generation(),
			Values:     p.out.Snapshot(),
		}
	})
	return s, err
}

// Subscribe calls fn on the loop goroutine for every change of a reactive
// output and for every query set through SetQuery. fn must not block.
// The returned function stops the subscription.
func (p *Pipeline) Subscribe(fn func(Change)) (func(), error) {
	var (
		sub *reactive.Owner
		id  uint64
	)
	err := p.loop.Do(func() {
		p.nextID++
		id = p.nextID
		p.subs[id] = fn

		sub = reactive.NewOwner(p.loop.Owner())
		reactive.WithOwner(sub, func() {
			for _, key := range p.out.Keys() {
				cell, ok := p.out.Cell(key)
				if !ok {
					continue
				}
				key := key
				reactive.Watch[any](cell, func(value, _ any) {
					fn(Change{Key: key, Value: value, Generation: p.out.Generation()})
				})
			}
		})
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		err := p.loop.Do(func() {
			delete(p.subs, id)
			sub.Dispose()
		})
		if err != nil {
			sub.Dispose()
		}
	}, nil
}

// Close cancels outstanding lookups and disposes the output. It does not
// close the loop.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	if err := p.loop.Do(p.out.Dispose); err != nil {
		p.out.Dispose()
	}
}
