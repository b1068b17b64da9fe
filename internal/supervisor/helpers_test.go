package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"

	"leasekeeper/internal/lease"
	"leasekeeper/internal/lease/memory"
	"leasekeeper/internal/retry"
	"leasekeeper/internal/workload"
)

const ttl = 120 * time.Second

var (
	epoch    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cronjobs = workload.NewSpec("ec2_container_lock", "cronjobs", "cronjobs")
	pyapi    = workload.NewSpec("ec2_container_lock", "pyapi", "pyapi")
	discard  = slog.New(slog.DiscardHandler)
)

// fakeWorkloads implements WorkloadController for one host.
type fakeWorkloads struct {
	mu        sync.Mutex
	running   map[string]bool
	starts    int
	stops     int
	startErr  error
	stopErr   error
	statusErr error
}

func newFakeWorkloads() *fakeWorkloads {
	return &fakeWorkloads{running: make(map[string]bool)}
}

func (f *fakeWorkloads) EnsureRunning(ctx context.Context, spec workload.Spec) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	if f.running[spec.ID] {
		return true, nil
	}
	if f.startErr != nil {
		return false, f.startErr
	}
	f.running[spec.ID] = true
	f.starts++
	return true, nil
}

func (f *fakeWorkloads) EnsureStopped(ctx context.Context, spec workload.Spec) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	if !f.running[spec.ID] {
		return false, nil
	}
	if f.stopErr != nil {
		return true, f.stopErr
	}
	f.running[spec.ID] = false
	f.stops++
	return false, nil
}

func (f *fakeWorkloads) IsRunning(ctx context.Context, spec workload.Spec) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	return f.running[spec.ID], nil
}

func (f *fakeWorkloads) setRunning(id string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = running
}

func (f *fakeWorkloads) isRunning(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[id]
}

func (f *fakeWorkloads) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// stubLeases implements LeaseClient with fixed answers.
type stubLeases struct {
	acquire  bool
	renew    bool
	err      error
	released []string
}

func (s *stubLeases) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.acquire, s.err
}

func (s *stubLeases) RenewIfOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.renew, s.err
}

func (s *stubLeases) ReleaseIfOwned(ctx context.Context, key, owner string) error {
	s.released = append(s.released, key)
	return nil
}

// recordingLeases reports every acquire and renew on calls.
type recordingLeases struct {
	LeaseClient
	calls chan string
}

func (r recordingLeases) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	r.calls <- "try_acquire"
	return r.LeaseClient.TryAcquire(ctx, key, owner, ttl)
}

func (r recordingLeases) RenewIfOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	r.calls <- "renew_if_owned"
	return r.LeaseClient.RenewIfOwned(ctx, key, owner, ttl)
}

func waitCall(t *testing.T, calls <-chan string, want string) {
	t.Helper()
	select {
	case got := <-calls:
		if got != want {
			t.Fatalf("expected %s call, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s call", want)
	}
}

// instance is one simulated host sharing the store with the others.
type instance struct {
	owner      string
	leases     *lease.Client
	workloads  *fakeWorkloads
	reconciler *Reconciler
	beliefs    map[string]Belief
}

func newLeaseClient(store lease.Store, clk clock.Clock) *lease.Client {
	return lease.NewClient(store, retry.Policy{Attempts: 1, Delay: time.Millisecond, Clock: clk}, discard)
}

func newInstance(store *memory.Store, clk clock.Clock, owner string) *instance {
	leases := newLeaseClient(store, clk)
	workloads := newFakeWorkloads()
	return &instance{
		owner:      owner,
		leases:     leases,
		workloads:  workloads,
		reconciler: NewReconciler(leases, workloads, owner, ttl, clk, discard),
		beliefs:    make(map[string]Belief),
	}
}

func (i *instance) tick(t *testing.T, spec workload.Spec) (Outcome, error) {
	t.Helper()
	belief, out, err := i.reconciler.Reconcile(context.Background(), spec, i.beliefs[spec.ID])
	i.beliefs[spec.ID] = belief
	return out, err
}
