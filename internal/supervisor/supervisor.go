package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leasekeeper/internal/logger"
	"leasekeeper/internal/observability"
	"leasekeeper/internal/workload"
)

// Config holds the supervisor's timing.
type Config struct {
	TTL             time.Duration
	TickInterval    time.Duration // Sleep between ticks (default: TTL/2)
	Cooldown        time.Duration // Sleep after a failed tick (default: 10s)
	ShutdownTimeout time.Duration // Bound on the shutdown cleanup (default: 30s)
}

// WorkloadStatus is a read-only snapshot of one workload, as of the last tick.
type WorkloadStatus struct {
	ID          string
	ProcessName string
	LeaseKey    string
	HoldsLease  bool
	Owner       string
	State       State
	LastRule    Rule
	LastAction  Action
	LastError   string
	LastTick    time.Time
}

// Supervisor runs the reconciler for every workload on a fixed cadence.
type Supervisor struct {
	reconciler *Reconciler
	workloads  []workload.Spec
	config     Config
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer

	// beliefs is only touched by the goroutine running Run.
	beliefs map[string]Belief

	mu     sync.RWMutex
	status map[string]WorkloadStatus
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithClock sets the clock used for sleeping between ticks.
func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) { s.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New creates a Supervisor for workloads.
func New(reconciler *Reconciler, workloads []workload.Spec, config Config, opts ...Option) *Supervisor {
	if config.TickInterval <= 0 {
		config.TickInterval = config.TTL / 2
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 10 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	s := &Supervisor{
		reconciler: reconciler,
		workloads:  workloads,
		config:     config,
		clock:      clock.WallClock,
		logger:     slog.Default(),
		tracer:     otel.Tracer("leasekeeper/supervisor"),
		beliefs:    make(map[string]Belief, len(workloads)),
		status:     make(map[string]WorkloadStatus, len(workloads)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.NewNoopMetrics()
	}

	for _, spec := range workloads {
		s.status[spec.ID] = WorkloadStatus{
			ID:          spec.ID,
			ProcessName: spec.ProcessName,
			LeaseKey:    spec.LeaseKey,
			State:       StateUnlockedStopped,
		}
	}
	return s
}

// Run ticks until ctx is cancelled, then releases held leases and stops
// every workload. Tick errors never end the loop. Cancellation is observed
// between ticks only.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		"workloads", len(s.workloads),
		"ttl", s.config.TTL,
		"tick_interval", s.config.TickInterval)

	for ctx.Err() == nil {
		wait := s.config.TickInterval
		if err := s.Tick(context.WithoutCancel(ctx)); err != nil {
			s.metrics.TickError(ctx)
			s.logger.Error("tick failed, cooling down", "error", err, "cooldown", s.config.Cooldown)
			wait = s.config.Cooldown
		}

		select {
		case <-ctx.Done():
		case <-s.clock.After(wait):
		}
	}

	s.logger.Info("supervisor shutting down")
	return s.Shutdown(context.WithoutCancel(ctx))
}

// Tick reconciles every workload once, sequentially. Errors from individual
// workloads are joined; a missing workload is logged and skipped.
func (s *Supervisor) Tick(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "tick")
	defer span.End()

	var errs []error
	for _, spec := range s.workloads {
		if err := s.reconcile(ctx, spec); err != nil {
			errs = append(errs, err)
		}
	}
	s.metrics.Tick(ctx)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tick failed")
	}
	return err
}

func (s *Supervisor) reconcile(ctx context.Context, spec workload.Spec) error {
	ctx = logger.WithWorkload(ctx, spec.ID)
	ctx, span := s.tracer.Start(ctx, "reconcile",
		trace.WithAttributes(attribute.String("workload", spec.ID)))
	defer span.End()

	belief, outcome, err := s.reconciler.Reconcile(ctx, spec, s.beliefs[spec.ID])
	s.beliefs[spec.ID] = belief

	span.SetAttributes(
		attribute.String("rule", outcome.Rule.String()),
		attribute.String("action", outcome.Action.String()),
		attribute.String("state", outcome.State.String()),
	)
	s.record(ctx, spec, belief, outcome, err)

	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "reconcile failed")

	if errors.Is(err, workload.ErrNotFound) {
		logger.FromContext(ctx, s.logger).Error("workload not found, skipping", "error", err)
		return nil
	}
	return fmt.Errorf("workload %s: %w", spec.ID, err)
}

func (s *Supervisor) record(ctx context.Context, spec workload.Spec, belief Belief, outcome Outcome, err error) {
	switch outcome.Rule {
	case RuleAcquired:
		if err == nil {
			s.metrics.LeaseAcquired(ctx, spec.ID)
		}
	case RuleLeaseLost:
		s.metrics.LeaseLost(ctx, spec.ID)
	case RuleInconsistent:
		s.metrics.InconsistentStop(ctx, spec.ID)
	}
	s.metrics.LeaseHeld(ctx, spec.ID, belief.HoldsLease)

	st := WorkloadStatus{
		ID:          spec.ID,
		ProcessName: spec.ProcessName,
		LeaseKey:    spec.LeaseKey,
		HoldsLease:  belief.HoldsLease,
		Owner:       belief.Owner,
		State:       outcome.State,
		LastRule:    outcome.Rule,
		LastAction:  outcome.Action,
		LastTick:    s.clock.Now(),
	}
	if err != nil {
		st.LastError = err.Error()
	}

	s.mu.Lock()
	s.status[spec.ID] = st
	s.mu.Unlock()
}

// Shutdown releases every held lease and stops every workload, bounded by
// the shutdown timeout. It is also the cleanup path after a failed start.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for _, spec := range s.workloads {
		if err := s.reconciler.Release(ctx, spec, s.beliefs[spec.ID]); err != nil {
			errs = append(errs, fmt.Errorf("workload %s: %w", spec.ID, err))
		}
		s.beliefs[spec.ID] = Belief{}
		s.metrics.LeaseHeld(ctx, spec.ID, false)

		s.mu.Lock()
		st := s.status[spec.ID]
		st.HoldsLease, st.Owner, st.State = false, "", StateUnlockedStopped
		s.status[spec.ID] = st
		s.mu.Unlock()
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("shutdown cleanup incomplete", "error", err)
	} else {
		s.logger.Info("shutdown cleanup complete")
	}
	return err
}

// Status returns a snapshot of every workload in registration order.
func (s *Supervisor) Status() []WorkloadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]WorkloadStatus, 0, len(s.workloads))
	for _, spec := range s.workloads {
		out = append(out, s.status[spec.ID])
	}
	return out
}
