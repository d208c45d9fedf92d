// simulate plays scripted controller gestures through an in-process telemetry
// pipeline and reports the bus events they produced.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/tapsense/internal/simulate"
	"github.com/okian/tapsense/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := simulate.DefaultConfig()
	var (
		repeat   int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive the tap pipeline with simulated controllers",
		Long: `simulate builds the telemetry pipeline on an in-memory store, attaches two
simulated controllers and plays a gesture script through it. A synthetic
classifier labels every uploaded recording by peak speed, so each tap
channel can be exercised without hardware or a remote model.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			if err := logger.SetLevelString(logLevel); err != nil {
				return err
			}
			if repeat < 1 {
				return fmt.Errorf("repeat must be at least 1, got %d", repeat)
			}
			script := cfg.Gestures
			cfg.Gestures = nil
			for i := 0; i < repeat; i++ {
				cfg.Gestures = append(cfg.Gestures, script...)
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Session, "session", "", "session id (generated when empty)")
	f.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "upload strategy: batch or release")
	f.IntVar(&cfg.Threshold, "threshold", cfg.Threshold, "batch strategy flush size")
	f.BoolVar(&cfg.AlsoWriteSingles, "also-write-singles", false, "write every sample individually as well")
	f.DurationVar(&cfg.PredictionTimeout, "prediction-timeout", cfg.PredictionTimeout, "release strategy prediction wait")
	f.DurationVar(&cfg.StepDelay, "step", cfg.StepDelay, "pause between sampler polls")
	f.IntVar(&repeat, "repeat", 1, "number of times to play the gesture script")
	f.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	return cmd
}

func run(ctx context.Context, out io.Writer, cfg simulate.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := simulate.Run(ctx, cfg)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, r *simulate.Report) {
	fmt.Fprintf(out, "session   %s\n", r.Session)
	fmt.Fprintf(out, "strategy  %s\n", r.Strategy)
	fmt.Fprintf(out, "gestures  %d\n", r.Gestures)
	fmt.Fprintf(out, "batches   %d\n", r.Batches)
	fmt.Fprintf(out, "samples   %d\n", r.Samples)
	fmt.Fprintf(out, "duration  %s\n", r.Duration.Round(time.Millisecond))

	names := make([]string, 0, len(r.Events))
	for name := range r.Events {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "events")
	for _, name := range names {
		fmt.Fprintf(out, "  %-18s %d\n", name, r.Events[name])
	}
}
