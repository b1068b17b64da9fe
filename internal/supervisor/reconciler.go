package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"leasekeeper/internal/workload"
)

// LeaseClient is the subset of lease.Client the reconciler needs.
type LeaseClient interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	RenewIfOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseIfOwned(ctx context.Context, key, owner string) error
}

// WorkloadController is the subset of workload.Controller the reconciler needs.
type WorkloadController interface {
	EnsureRunning(ctx context.Context, spec workload.Spec) (bool, error)
	EnsureStopped(ctx context.Context, spec workload.Spec) (bool, error)
	IsRunning(ctx context.Context, spec workload.Spec) (bool, error)
}

// Reconciler applies the reconciliation rules to one workload at a time.
// It holds no per-workload state; the caller passes the Belief in and
// stores the one returned.
type Reconciler struct {
	leases    LeaseClient
	workloads WorkloadController
	owner     string
	ttl       time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler acting as owner.
func NewReconciler(leases LeaseClient, workloads WorkloadController, owner string, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *Reconciler {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		leases:    leases,
		workloads: workloads,
		owner:     owner,
		ttl:       ttl,
		clock:     clk,
		logger:    logger,
	}
}

// Reconcile runs one tick for spec. At most one corrective action is taken.
// The returned Belief replaces the one passed in even when err is non-nil.
func (r *Reconciler) Reconcile(ctx context.Context, spec workload.Spec, belief Belief) (Belief, Outcome, error) {
	logger := r.logger.With("workload", spec.ID)

	now := r.clock.Now()
	if belief.HoldsLease {
		renewed, err := r.leases.RenewIfOwned(ctx, spec.LeaseKey, belief.Owner, r.ttl)
		if err != nil {
			// Past the local deadline the store has expired the lease.
			if r.clock.Now().Before(belief.RenewedAt.Add(r.ttl)) {
				return belief, Outcome{Rule: RuleNone, State: StateLockedRunning}, err
			}
			logger.Warn("lease deadline passed without renewal, stopping workload", "error", err)
			b, out, stopErr := r.loseLease(ctx, spec, belief, logger)
			return b, out, errors.Join(err, stopErr)
		}
		if !renewed {
			logger.Warn("failed to renew lease, stopping workload")
			return r.loseLease(ctx, spec, belief, logger)
		}

		// The store's expiry was reset no earlier than now.
		belief.RenewedAt = now
		logger.Debug("lease renewed")
		return belief, Outcome{Rule: RuleRenewed, State: StateLockedRunning}, nil
	}

	acquired, err := r.leases.TryAcquire(ctx, spec.LeaseKey, r.owner, r.ttl)
	if err != nil {
		return Belief{}, Outcome{Rule: RuleNone, State: StateUnlockedStopped}, err
	}
	if acquired {
		logger.Info("lease acquired, starting workload", "owner", r.owner)
		belief = Belief{HoldsLease: true, Owner: r.owner, RenewedAt: now}

		if _, err := r.workloads.EnsureRunning(ctx, spec); err != nil {
			// A held lease must mean a running workload.
			logger.Error("failed to start workload, releasing lease", "error", err)
			r.releaseBestEffort(ctx, spec, r.owner, logger)
			return Belief{}, Outcome{Rule: RuleAcquired, Action: ActionStart, State: StateUnlockedStopped}, err
		}
		return belief, Outcome{Rule: RuleAcquired, Action: ActionStart, State: StateLockedRunning}, nil
	}

	running, err := r.workloads.IsRunning(ctx, spec)
	if err != nil {
		return Belief{}, Outcome{Rule: RuleNone, State: StateUnlockedStopped}, err
	}
	if running {
		logger.Warn("workload running without lease, stopping it")
		if _, err := r.workloads.EnsureStopped(ctx, spec); err != nil {
			return Belief{}, Outcome{Rule: RuleInconsistent, Action: ActionStop, State: StateUnlockedRunning}, err
		}
		return Belief{}, Outcome{Rule: RuleInconsistent, Action: ActionStop, State: StateUnlockedStopped}, nil
	}

	return Belief{}, Outcome{Rule: RuleIdle, State: StateUnlockedStopped}, nil
}

// loseLease stops the workload and drops the belief. The belief is cleared
// even if the stop fails; the inconsistent-state rule retries the stop on
// the next tick without touching the store.
func (r *Reconciler) loseLease(ctx context.Context, spec workload.Spec, belief Belief, logger *slog.Logger) (Belief, Outcome, error) {
	_, stopErr := r.workloads.EnsureStopped(ctx, spec)
	if stopErr != nil {
		logger.Error("failed to stop workload after losing lease", "error", stopErr)
	}
	r.releaseBestEffort(ctx, spec, belief.Owner, logger)

	out := Outcome{Rule: RuleLeaseLost, Action: ActionStop, State: StateUnlockedStopped}
	if stopErr != nil {
		out.State = StateLockedStopping
	}
	return Belief{}, out, stopErr
}

func (r *Reconciler) releaseBestEffort(ctx context.Context, spec workload.Spec, owner string, logger *slog.Logger) {
	if err := r.leases.ReleaseIfOwned(ctx, spec.LeaseKey, owner); err != nil {
		logger.Warn("failed to release lease", "owner", owner, "error", err)
	}
}

// Release gives up the lease if belief holds it and stops the workload
// either way. It is the per-workload shutdown step.
func (r *Reconciler) Release(ctx context.Context, spec workload.Spec, belief Belief) error {
	logger := r.logger.With("workload", spec.ID)

	var releaseErr error
	if belief.HoldsLease {
		if releaseErr = r.leases.ReleaseIfOwned(ctx, spec.LeaseKey, belief.Owner); releaseErr != nil {
			logger.Warn("failed to release lease on shutdown", "error", releaseErr)
		} else {
			logger.Info("lease released")
		}
	}

	_, stopErr := r.workloads.EnsureStopped(ctx, spec)
	if errors.Is(stopErr, workload.ErrNotFound) {
		logger.Error("workload not found on shutdown", "error", stopErr)
		stopErr = nil
	} else if stopErr != nil {
		logger.Error("failed to stop workload on shutdown", "error", stopErr)
	}
	return errors.Join(releaseErr, stopErr)
}
