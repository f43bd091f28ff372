package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/dialectica/internal/metrics"
	"github.com/example/dialectica/internal/telemetry"
	"github.com/example/dialectica/internal/wire"
)

const shutdownGrace = 5 * time.Second

// ReconcileCmd returns the reconcile command
func ReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair work lost between units",
		Long: `Run one reconciliation sweep.

The sweep re-dispatches decomposition, research and synthesis that a
crashed or timed-out worker left behind, finishes convergence and
completion checks that never ran, and closes abandoned ledger entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := wire.ReconcileService().Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep finished with errors: %w", err)
			}

			fmt.Printf("✓ Sweep complete: %d repairs\n", result.Total())
			fmt.Printf("  decompose requeued:  %d\n", result.DecomposeRequeued)
			fmt.Printf("  dossiers finalized:  %d\n", result.DossiersFinalized)
			fmt.Printf("  research requeued:   %d\n", result.ResearchRequeued)
			fmt.Printf("  jobs converged:      %d\n", result.JobsConverged)
			fmt.Printf("  jobs completed:      %d\n", result.JobsCompleted)
			fmt.Printf("  synthesis requeued:  %d\n", result.SynthesisRequeued)
			fmt.Printf("  ledger entries failed: %d\n", result.LedgerEntriesFailed)

			return settle(cmd)
		},
	}
	cmd.Flags().Bool("wait", false, "Run the re-dispatched work inline")
	return cmd
}

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool, reconciliation loop and metrics endpoint",
		Long: `Run dialectica as a long-lived worker.

On start, tasks left in flight by workers that are no longer running are
returned to the queue. With the redis backend several workers can share
one queue; the memory backend only sees work created by this process.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := wire.Config()
	if err != nil {
		return err
	}
	defer wire.Close()

	shutdownTracing, err := telemetry.SetupTracing(cmd.Context(), cfg.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(cmd.Context())

	recovered, err := wire.TaskQueue().Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-flight tasks: %w", err)
	}
	slog.Info("worker starting",
		"concurrency", cfg.Worker.Concurrency,
		"queue", cfg.Queue.Backend,
		"recovered_tasks", recovered,
	)

	g.Go(func() error {
		return wire.Dispatcher().Run(ctx)
	})

	g.Go(func() error {
		return reconcileLoop(ctx, cfg.Reconcile.Interval.Std())
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	slog.Info("worker stopped")
	return err
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// reconcileLoop sweeps once at start and then on every tick. A failed
// sweep is logged and retried on the next tick.
func reconcileLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := wire.ReconcileService().Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Error("reconciliation sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
