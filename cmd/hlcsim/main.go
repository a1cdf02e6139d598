package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hlcrelay/internal/config"
	"hlcrelay/internal/logging"
	"hlcrelay/internal/metrics"
	"hlcrelay/internal/sim"
	"hlcrelay/internal/trace"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var exampleUsage = `  # Two nodes exchanging ten messages each over in-process channels.
  hlcsim run

  # Fast run with n2's wall clock 500ms behind.
  hlcsim run --min-delay 0 --max-delay 5ms --iterations 200 --skews n2=-500ms

  # Relay over gRPC on loopback and keep the trace.
  hlcsim run --transport grpc --nodes n1=127.0.0.1:50061,n2=127.0.0.1:50062 --trace-out trace.yaml
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hlcsim",
		Short:        "Simulate nodes exchanging hybrid logical clock timestamps.",
		Example:      exampleUsage,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation and verify clock ordering",
		Args:  cobra.NoArgs,
	}
	opt := newOptions(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := opt.load()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return cmd
}

func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Output: stderr, NoColor: cfg.NoColor})
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("starting the HLC distributed system: %d nodes, %d iterations, %s transport",
		len(cfg.Nodes), cfg.Iterations, cfg.Transport)

	col := metrics.New()
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, col, log)
		defer shutdown()
	}

	report, err := sim.Run(ctx, cfg, sim.WithLogger(log), sim.WithMetrics(col))
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	printSummary(stdout, report)

	if cfg.TraceOut != "" {
		if err := writeTrace(cfg.TraceOut, report); err != nil {
			return err
		}
		log.Infof("trace written to %s", cfg.TraceOut)
	}

	if err := report.Verify(); err != nil {
		return fmt.Errorf("clock ordering violated: %w", err)
	}
	log.Infof("verified %d events: monotonicity and causality hold", len(report.Events))
	return nil
}

func serveMetrics(addr string, col *metrics.Collector, log *zap.SugaredLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", col.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func printSummary(w io.Writer, report *sim.Report) {
	fmt.Fprintf(w, "sent %d, received %d in %s\n", report.Sent, report.Received, report.Elapsed.Round(time.Millisecond))

	final := report.Final()
	nodes := append([]string(nil), report.Nodes...)
	sort.Strings(nodes)
	for _, id := range nodes {
		fmt.Fprintf(w, "node %s final HLC %s\n", id, final[id])
	}
}

func writeTrace(path string, report *sim.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	if err := trace.WriteYAML(f, report.Events); err != nil {
		f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}
