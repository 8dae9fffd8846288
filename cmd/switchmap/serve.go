package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/switchmap/internal/errors"
	"github.com/vango-dev/switchmap/internal/pipeline"
	"github.com/vango-dev/switchmap/internal/server"
	"github.com/vango-dev/switchmap/pkg/reactive"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr    string
		initial int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the live inspector",
		Long: `Start the live inspector.

The inspector drives the lookup pipeline over HTTP and streams every
output change to websocket clients.

Examples:
  switchmap serve
  switchmap serve --addr=0.0.0.0:7070
  curl -d '{"query": 4}' localhost:7070/input`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(flags, os.Stderr)
			if err != nil {
				return err
			}
			if addr != "" {
				s.cfg.Server.Addr = addr
				if err := s.cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), s, initial)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from switchmap.json)")
	cmd.Flags().IntVar(&initial, "initial", 1, "Initial query")

	return cmd
}

func runServe(ctx context.Context, s *stack, initial int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	owner := reactive.NewOwner(nil)
	defer owner.Dispose()
	loop := reactive.NewLoop(owner, reactive.WithLoopLogger(s.logger))
	defer loop.Close()

	p, err := pipeline.New(loop, pipeline.Options{
		Initial:   initial,
		Delay:     s.cfg.DemoDelay(),
		Logger:    s.logger,
		SwitchMap: s.options(),
	})
	if err != nil {
		return errors.New("S041").Wrap(err)
	}
	defer p.Close()

	var gatherer prometheus.Gatherer
	if s.registry != nil {
		gatherer = s.registry
	}

	srv := server.New(server.Config{
		Addr:     s.cfg.Server.Addr,
		Pipeline: p,
		Gatherer: gatherer,
		Logger:   s.logger,
	})

	info("inspector on http://%s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(ctx); err != nil {
		return errors.FromError(err, "S040")
	}
	success("inspector stopped")
	return nil
}
