package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/juju/clock"

	"leasekeeper/internal/config"
	"leasekeeper/internal/lease"
	"leasekeeper/internal/lease/memory"
	"leasekeeper/internal/lease/postgres"
	"leasekeeper/internal/lease/redis"
	"leasekeeper/internal/retry"
	"leasekeeper/internal/workload"
	"leasekeeper/internal/workload/runtime"
)

// newStore opens the configured lease store.
func newStore(ctx context.Context, cfg *config.Config) (lease.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		store, err := postgres.New(ctx, cfg.Store.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lease.ErrStoreUnavailable, err)
		}
		return store, nil
	case "memory":
		return memory.New(clock.WallClock), nil
	case "redis":
		return redis.New(redis.Options{
			Addr:        cfg.Store.Redis.Addr,
			Password:    cfg.Store.Redis.Password,
			DB:          cfg.Store.Redis.DB,
			DialTimeout: seconds(cfg.Store.Redis.DialTimeoutSeconds),
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalid, cfg.Store.Backend)
	}
}

// newLeaseClient wraps store with the configured retry policy.
func newLeaseClient(store lease.Store, cfg *config.Config, logger *slog.Logger) *lease.Client {
	policy := retry.Policy{
		Attempts: cfg.RetryCount,
		Delay:    cfg.RetryDelay(),
		Clock:    clock.WallClock,
		Logger:   logger,
	}
	return lease.NewClient(store, policy, logger)
}

// newExecutor builds the configured workload executor. Tests replace it.
var newExecutor = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (workload.Executor, error) {
	switch cfg.Runtime.Backend {
	case "kubernetes":
		logger.Info("using kubernetes runtime", "namespace", cfg.Runtime.Kubernetes.Namespace)
		return runtime.NewKubernetesExecutor(runtime.KubernetesConfig{
			Namespace:  cfg.Runtime.Kubernetes.Namespace,
			Kubeconfig: cfg.Runtime.Kubernetes.Kubeconfig,
		}, logger)
	case "systemd":
		logger.Info("using systemd runtime")
		return runtime.NewSystemdExecutor(ctx)
	case "docker":
		logger.Info("using docker runtime")
		return runtime.NewDockerExecutor(seconds(cfg.Runtime.StopTimeoutSeconds))
	default:
		return nil, fmt.Errorf("%w: unknown runtime backend %q", config.ErrInvalid, cfg.Runtime.Backend)
	}
}
