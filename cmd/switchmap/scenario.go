package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/switchmap/pkg/reactive"
	"github.com/vango-dev/switchmap/pkg/switchmap"
)

// scenarios maps a name to a synchronous example run.
var scenarios = map[string]func(w io.Writer, opts []switchmap.Option){
	"a": scenarioInitial,
	"b": scenarioSwitch,
	"c": scenarioStale,
}

func scenarioCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [a|b|c]",
		Short: "Run a canned synchronous example",
		Long: `Run a canned synchronous example and print every step.

  a  first derivation: a reactive field and a plain field
  b  input change: cleanup runs before the next projection
  c  a superseded derivation fires late and is discarded

Without an argument every scenario runs in order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(flags, os.Stderr)
			if err != nil {
				return err
			}

			names := []string{"a", "b", "c"}
			if len(args) == 1 {
				name := strings.ToLower(args[0])
				if _, ok := scenarios[name]; !ok {
					return invalidArg(fmt.Sprintf("unknown scenario %q, want one of a, b, c", args[0]))
				}
				names = []string{name}
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "scenario %s\n", name)
				scenarios[name](out, append(s.options(), switchmap.WithName("scenario_"+name)))
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

// tenfold projects v into {a: cell(v*10), b: plain}. Each derivation's
// cell is stored in cells so a scenario can poke superseded ones.
func tenfold(w io.Writer, cells map[int]*reactive.Signal[int]) switchmap.ProjectFunc[int] {
	return func(v int, setCleanup switchmap.SetCleanup) switchmap.Projection {
		fmt.Fprintf(w, "  project(%d)\n", v)
		cell := reactive.NewSignal(v * 10)
		cells[v] = cell
		setCleanup(func() {
			fmt.Fprintf(w, "  cleanup(%d)\n", v)
		})

		b := "const"
		if v > 1 {
			b = fmt.Sprintf("const%d", v)
		}
		return switchmap.Projection{
			"a": switchmap.Reactive[int](cell),
			"b": switchmap.Plain(b),
		}
	}
}

func printOutput(w io.Writer, out *switchmap.Output) {
	fmt.Fprintf(w, "  output gen=%d a=%v b=%v\n", out.Generation(), out.Peek("a"), out.Peek("b"))
}

// dispose prints a marker line, then disposes out.
func dispose(w io.Writer, out *switchmap.Output) {
	fmt.Fprintln(w, "  dispose")
	out.Dispose()
}

func scenarioInitial(w io.Writer, opts []switchmap.Option) {
	input := reactive.NewSignal(1)
	out := switchmap.SwitchMap[int](input, tenfold(w, map[int]*reactive.Signal[int]{}), opts...)
	printOutput(w, out)
	dispose(w, out)
}

func scenarioSwitch(w io.Writer, opts []switchmap.Option) {
	input := reactive.NewSignal(1)
	out := switchmap.SwitchMap[int](input, tenfold(w, map[int]*reactive.Signal[int]{}), opts...)
	printOutput(w, out)
	fmt.Fprintln(w, "  input.Set(2)")
	input.Set(2)
	printOutput(w, out)
	dispose(w, out)
}

func scenarioStale(w io.Writer, opts []switchmap.Option) {
	cells := map[int]*reactive.Signal[int]{}
	input := reactive.NewSignal(1)
	out := switchmap.SwitchMap[int](input, tenfold(w, cells), opts...)

	a, _ := out.Cell("a")
	watcher := reactive.Watch[any](a, func(v, old any) {
		fmt.Fprintf(w, "  watch a: %v -> %v\n", old, v)
	})

	fmt.Fprintln(w, "  input.Set(2)")
	input.Set(2)
	fmt.Fprintln(w, "  late write to derivation 1: a=15")
	cells[1].Set(15)
	printOutput(w, out)
	watcher.Stop()
	dispose(w, out)
}
