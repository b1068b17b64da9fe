package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Controller makes start and stop idempotent. It never retries: a missing
// process will not appear on a second attempt, and runtime failures are
// handled by the reconciler's policy.
type Controller struct {
	executor Executor
	logger   *slog.Logger
}

// NewController returns a Controller driving executor.
func NewController(executor Executor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{executor: executor, logger: logger}
}

// EnsureRunning starts the workload unless it already runs and returns the
// resulting running state.
func (c *Controller) EnsureRunning(ctx context.Context, spec Spec) (bool, error) {
	status, err := c.status(ctx, spec)
	if err != nil {
		return false, err
	}
	if status == StatusRunning {
		return true, nil
	}

	if err := c.executor.Start(ctx, spec.ProcessName); err != nil {
		return false, c.wrap("start", spec, err)
	}
	c.logger.Info("workload started", "workload", spec.ID, "process", spec.ProcessName)
	return true, nil
}

// EnsureStopped stops the workload if it runs and returns the resulting
// running state.
func (c *Controller) EnsureStopped(ctx context.Context, spec Spec) (bool, error) {
	status, err := c.status(ctx, spec)
	if err != nil {
		return false, err
	}
	if status != StatusRunning {
		return false, nil
	}

	if err := c.executor.Stop(ctx, spec.ProcessName); err != nil {
		return true, c.wrap("stop", spec, err)
	}
	c.logger.Info("workload stopped", "workload", spec.ID, "process", spec.ProcessName)
	return false, nil
}

// IsRunning reports whether the workload currently runs. It has no side
// effects.
func (c *Controller) IsRunning(ctx context.Context, spec Spec) (bool, error) {
	status, err := c.status(ctx, spec)
	if err != nil {
		return false, err
	}
	return status == StatusRunning, nil
}

func (c *Controller) status(ctx context.Context, spec Spec) (Status, error) {
	status, err := c.executor.Status(ctx, spec.ProcessName)
	if err != nil {
		return StatusNotRunning, c.wrap("status", spec, err)
	}
	if status == StatusNotFound {
		return status, fmt.Errorf("workload %s (process %q): %w", spec.ID, spec.ProcessName, ErrNotFound)
	}
	return status, nil
}

func (c *Controller) wrap(op string, spec Spec, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s workload %s (process %q): %w", op, spec.ID, spec.ProcessName, err)
	}
	if errors.Is(err, ErrRuntimeUnavailable) {
		return fmt.Errorf("%s workload %s: %w", op, spec.ID, err)
	}
	return fmt.Errorf("%s workload %s: %w: %w", op, spec.ID, ErrRuntimeUnavailable, err)
}
