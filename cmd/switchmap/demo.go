package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/switchmap/internal/pipeline"
	"github.com/vango-dev/switchmap/pkg/reactive"
)

func demoCmd(flags *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo [query...]",
		Short: "Run the asynchronous lookup pipeline",
		Long: `Run the asynchronous lookup pipeline in the terminal.

Each query starts a lookup that lands after the configured delay.
Queries sent faster than the delay cancel the lookups they supersede,
so only the last query's result reaches the output.

Examples:
  switchmap demo
  switchmap demo 1 2 3 --interval=10ms
  switchmap demo 4 5 --delay=200ms --interval=300ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := []int{1, 2, 3}
			if len(args) > 0 {
				queries = queries[:0]
				for _, arg := range args {
					q, err := strconv.Atoi(arg)
					if err != nil {
						return invalidArg(fmt.Sprintf("query %q is not an integer", arg))
					}
					queries = append(queries, q)
				}
			}

			s, err := loadStack(flags, os.Stderr)
			if err != nil {
				return err
			}
			if delay <= 0 {
				delay = s.cfg.DemoDelay()
			}
			return runDemo(cmd, s, queries, delay, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "Time between queries")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Lookup latency (default from switchmap.json)")

	return cmd
}

func runDemo(cmd *cobra.Command, s *stack, queries []int, delay, interval time.Duration) error {
	out := cmd.OutOrStdout()

	owner := reactive.NewOwner(nil)
	defer owner.Dispose()
	loop := reactive.NewLoop(owner, reactive.WithLoopLogger(s.logger))
	defer loop.Close()

	p, err := pipeline.New(loop, pipeline.Options{
		Initial:   queries[0],
		Delay:     delay,
		Logger:    s.logger,
		SwitchMap: s.options(),
	})
	if err != nil {
		return err
	}
	defer p.Close()

	done := make(chan struct{}, 1)
	stop, err := p.Subscribe(func(c pipeline.Change) {
		fmt.Fprintf(out, "  gen=%d %-6s = %v\n", c.Generation, c.Key, c.Value)
		if c.Key == pipeline.KeyStatus && c.Value == pipeline.StatusDone {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	info("query %d", queries[0])
	for _, q := range queries[1:] {
		time.Sleep(interval)
		info("query %d", q)
		if err := p.SetQuery(q); err != nil {
			return err
		}
	}

	select {
	case <-done:
	case <-time.After(delay + 5*time.Second):
		warn("no lookup completed within %s", delay+5*time.Second)
	}

	snap, err := p.Snapshot()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	success("generation %d: query=%v status=%v result=%v",
		snap.Generation,
		snap.Values[pipeline.KeyQuery],
		snap.Values[pipeline.KeyStatus],
		snap.Values[pipeline.KeyResult])
	if s.metrics != nil {
		info("derivations=%.0f cleanups=%.0f stale=%.0f",
			s.counter("derivations_total"),
			s.counter("cleanups_total"),
			s.counter("stale_discards_total"))
	}
	return nil
}
