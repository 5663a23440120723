package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/signalflow"
)

type benchOptions struct {
	Producers int
	Emissions int
	Channels  int
	SpinCount int
	Format    string
}

type benchResult struct {
	Stats     signalflow.CircuitStats `json:"stats"`
	Received  uint64                  `json:"received"`
	Elapsed   time.Duration           `json:"elapsed_ns"`
	PerSecond float64                 `json:"per_second"`
}

var benchOpts = benchOptions{Producers: 4, Emissions: 100_000, Channels: 8, SpinCount: signalflow.DefaultSpinCount, Format: "table"}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Drive a circuit with concurrent producers and report its stats",
	Long: `Run producers goroutines that each emit a number of values across a set of
conduit channels, wait for the circuit to deliver all of them, and print the
circuit statistics.

Examples:
  signalflow bench                                   # 4 producers x 100000 emissions
  signalflow bench --producers 16 --emissions 10000  # more contention
  signalflow bench --spin 0 --format json            # park immediately, JSON output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runBench(cmd.Context(), benchOpts)
		if err != nil {
			return err
		}
		return printBench(cmd.OutOrStdout(), benchOpts.Format, res)
	},
}

func runBench(ctx context.Context, opts benchOptions) (benchResult, error) {
	if opts.Producers <= 0 || opts.Emissions < 0 || opts.Channels <= 0 {
		return benchResult{}, fmt.Errorf("producers and channels must be positive, emissions non-negative")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := signalflow.NewCircuit(signalflow.MustParseName("bench"), signalflow.WithSpinCount(opts.SpinCount))
	defer func() { _ = c.Close() }()

	cd, err := signalflow.NewConduit(c, signalflow.MustParseName("load"), signalflow.PipeComposer[int]())
	if err != nil {
		return benchResult{}, err
	}

	var received uint64
	counter, err := signalflow.NewSubscriber(c, signalflow.MustParseName("counter"), func(_ *signalflow.Subject, reg *signalflow.Registrar[int]) {
		_ = reg.Register(func(int) { received++ })
	})
	if err != nil {
		return benchResult{}, err
	}
	if _, err := cd.Subscribe(counter); err != nil {
		return benchResult{}, err
	}

	pipes := make([]*signalflow.Pipe[int], opts.Channels)
	for i := range pipes {
		n, err := signalflow.NameOf("ch", strconv.Itoa(i))
		if err != nil {
			return benchResult{}, err
		}
		if pipes[i], err = cd.Percept(n); err != nil {
			return benchResult{}, err
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	for p := 0; p < opts.Producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < opts.Emissions; i++ {
				pipes[(p+i)%len(pipes)].Emit(i)
			}
		}(p)
	}
	wg.Wait()
	if err := c.Await(ctx); err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(start)

	res := benchResult{
		Stats:    c.Stats(),
		Received: received,
		Elapsed:  elapsed,
	}
	if elapsed > 0 {
		res.PerSecond = float64(res.Received) / elapsed.Seconds()
	}
	return res, nil
}

func printBench(w io.Writer, format string, res benchResult) error {
	switch format {
	case "json":
		out, err := signalflow.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "table":
		s := res.Stats
		rows := []struct {
			label string
			value any
		}{
			{"circuit", s.Name},
			{"emitted", s.Emitted},
			{"delivered", s.Delivered},
			{"received", res.Received},
			{"failed", s.Failed},
			{"dropped", s.Dropped},
			{"activations", s.Activations},
			{"parks", s.Parks},
			{"elapsed", res.Elapsed},
			{"per second", fmt.Sprintf("%.0f", res.PerSecond)},
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%-12s %v\n", r.label, r.value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q, use table or json", format)
	}
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVarP(&benchOpts.Producers, "producers", "p", benchOpts.Producers, "Number of producer goroutines")
	benchCmd.Flags().IntVarP(&benchOpts.Emissions, "emissions", "n", benchOpts.Emissions, "Emissions per producer")
	benchCmd.Flags().IntVarP(&benchOpts.Channels, "channels", "c", benchOpts.Channels, "Number of conduit channels")
	benchCmd.Flags().IntVar(&benchOpts.SpinCount, "spin", benchOpts.SpinCount, "Idle polls before the worker parks")
	benchCmd.Flags().StringVarP(&benchOpts.Format, "format", "f", benchOpts.Format, "Output format (table, json)")
}
