package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"leasekeeper/internal/admin"
	"leasekeeper/internal/config"
	"leasekeeper/internal/lease"
	"leasekeeper/internal/observability"
	"leasekeeper/internal/supervisor"
	"leasekeeper/internal/workload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the configured workloads",
	Long: `Run the supervisor loop until SIGINT or SIGTERM.

Every tick the instance renews the leases it holds, competes for the free
ones and makes each workload's running state match lease ownership. On
shutdown it releases its leases and stops every workload.

The admin server exposes /healthz, /readyz, /status and /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireWorkloads(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runSupervisor(ctx, cfg, log)
	},
}

// runSupervisor wires every component and blocks until ctx is cancelled.
func runSupervisor(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	owner := lease.NewOwnerToken()
	log = log.With("owner", owner)

	// Tracing
	ids := make([]string, 0, len(cfg.Workloads))
	for _, w := range cfg.Workloads {
		ids = append(ids, w.ID)
	}
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:   "leasekeeper",
		CollectorAddr: cfg.OTELEndpoint,
		Owner:         owner,
		Workloads:     ids,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()
	metrics, err := observability.NewMetrics(otel.Meter(observability.MeterName))
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	leases := newLeaseClient(store, cfg, log)

	executor, err := newExecutor(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	if closer, ok := executor.(io.Closer); ok {
		defer closer.Close()
	}

	reconciler := supervisor.NewReconciler(leases, workload.NewController(executor, log), owner, cfg.TTL(), clock.WallClock, log)
	sup := supervisor.New(reconciler, cfg.Specs(), supervisor.Config{
		TTL:             cfg.TTL(),
		TickInterval:    cfg.TickInterval(),
		Cooldown:        cfg.Cooldown(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
	}, supervisor.WithLogger(log), supervisor.WithMetrics(metrics))

	if err := leases.Ping(ctx); err != nil {
		log.Error("lease store unreachable, giving up", "error", err)
		if cleanupErr := sup.Shutdown(context.WithoutCancel(ctx)); cleanupErr != nil {
			log.Error("cleanup failed", "error", cleanupErr)
		}
		return fmt.Errorf("startup check failed: %w", err)
	}

	srv := admin.New(cfg.AdminAddr, admin.NewHandlers(store, sup, owner, cfg.AdminReadyRate), metricsHandler)
	adminDone := make(chan struct{})
	go func() {
		defer close(adminDone)
		log.Info("admin server listening", "addr", cfg.AdminAddr)
		if err := srv.Run(ctx); err != nil {
			log.Error("admin server error", "error", err)
		}
	}()

	err = sup.Run(ctx)
	<-adminDone
	return err
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func init() {
	rootCmd.AddCommand(runCmd)
}
