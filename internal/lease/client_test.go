package lease_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock"

	"leasekeeper/internal/lease"
	"leasekeeper/internal/lease/memory"
	"leasekeeper/internal/retry"
)

const key = "ec2_container_lock::cronjobs"

func newClient(t *testing.T) (*lease.Client, *memory.Store) {
	t.Helper()
	store := memory.New(nil)
	policy := retry.Policy{Attempts: 3, Delay: time.Millisecond, Clock: clock.WallClock}
	return lease.NewClient(store, policy, nil), store
}

// flakyStore fails the first n calls to every method before delegating.
type flakyStore struct {
	lease.Store
	failures int
	calls    int
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *flakyStore) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	return f.Store.Create(ctx, key, owner, ttl)
}

func (f *flakyStore) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	return f.Store.Extend(ctx, key, owner, ttl)
}

func TestClient_AcquireRenewRelease(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()

	ok, err := c.TryAcquire(ctx, key, "a", 2*time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire = %v, %v", ok, err)
	}

	ok, err = c.TryAcquire(ctx, key, "b", 2*time.Minute)
	if err != nil || ok {
		t.Fatalf("contending TryAcquire = %v, %v; want false, nil", ok, err)
	}

	ok, err = c.RenewIfOwned(ctx, key, "a", 2*time.Minute)
	if err != nil || !ok {
		t.Fatalf("RenewIfOwned = %v, %v", ok, err)
	}

	ok, err = c.RenewIfOwned(ctx, key, "b", 2*time.Minute)
	if err != nil || ok {
		t.Fatalf("foreign RenewIfOwned = %v, %v; want false, nil", ok, err)
	}

	owner, found, err := c.ReadOwner(ctx, key)
	if err != nil || !found || owner != "a" {
		t.Fatalf("ReadOwner = %q, %v, %v", owner, found, err)
	}

	if err := c.ReleaseIfOwned(ctx, key, "b"); err != nil {
		t.Fatalf("foreign release should be a no-op, got %v", err)
	}
	if _, found, _ := c.ReadOwner(ctx, key); !found {
		t.Fatal("foreign release removed the lease")
	}

	if err := c.ReleaseIfOwned(ctx, key, "a"); err != nil {
		t.Fatalf("ReleaseIfOwned: %v", err)
	}
	if err := c.ReleaseIfOwned(ctx, key, "a"); err != nil {
		t.Fatalf("second ReleaseIfOwned should be idempotent, got %v", err)
	}
	if _, found, _ := c.ReadOwner(ctx, key); found {
		t.Error("lease still present after release")
	}
	if store.Writes() != 3 {
		t.Errorf("expected 3 writes (create, extend, delete), got %d", store.Writes())
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(nil), failures: 2}
	policy := retry.Policy{Attempts: 3, Delay: time.Millisecond, Clock: clock.WallClock}
	c := lease.NewClient(flaky, policy, nil)

	ok, err := c.TryAcquire(context.Background(), key, "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire = %v, %v; want true, nil", ok, err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 store calls, got %d", flaky.calls)
	}
}

func TestClient_StoreUnavailableAfterRetries(t *testing.T) {
	c, store := newClient(t)
	store.SetFailure(errors.New("dial tcp: connection refused"))

	_, err := c.TryAcquire(context.Background(), key, "a", time.Minute)
	if !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected underlying error in message, got %v", err)
	}

	if _, err := c.RenewIfOwned(context.Background(), key, "a", time.Minute); !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("RenewIfOwned: expected ErrStoreUnavailable, got %v", err)
	}
	if err := c.ReleaseIfOwned(context.Background(), key, "a"); !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("ReleaseIfOwned: expected ErrStoreUnavailable, got %v", err)
	}
	if _, _, err := c.ReadOwner(context.Background(), key); !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("ReadOwner: expected ErrStoreUnavailable, got %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("Ping: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestClient_RejectsInvalidArguments(t *testing.T) {
	c, store := newClient(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		owner string
		ttl   time.Duration
	}{
		{"empty key", "", "a", time.Minute},
		{"empty owner", key, "", time.Minute},
		{"owner with space", key, "host 1", time.Minute},
		{"zero ttl", key, "a", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.TryAcquire(ctx, tt.key, tt.owner, tt.ttl)
			if !errors.Is(err, lease.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
	if store.Writes() != 0 {
		t.Errorf("invalid requests must not reach the store, got %d writes", store.Writes())
	}
}

// lostReplyStore applies the first Create and then reports a timeout, as if
// the reply never reached the client.
type lostReplyStore struct {
	lease.Store
	creates int
}

func (l *lostReplyStore) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.creates++
	ok, err := l.Store.Create(ctx, key, owner, ttl)
	if l.creates == 1 && err == nil {
		return false, errors.New("i/o timeout")
	}
	return ok, err
}

func TestClient_AcquireSurvivesLostReply(t *testing.T) {
	store := &lostReplyStore{Store: memory.New(nil)}
	policy := retry.Policy{Attempts: 3, Delay: time.Millisecond, Clock: clock.WallClock}
	c := lease.NewClient(store, policy, nil)
	ctx := context.Background()

	ok, err := c.TryAcquire(ctx, key, "me", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire = %v, %v; want true, nil", ok, err)
	}
	if store.creates != 2 {
		t.Errorf("expected 2 create attempts, got %d", store.creates)
	}

	owner, found, err := c.ReadOwner(ctx, key)
	if err != nil || !found || owner != "me" {
		t.Fatalf("ReadOwner = %q, %v, %v", owner, found, err)
	}

	// Contention after a failed attempt is still a plain false.
	held := memory.New(nil)
	if _, err := held.Create(ctx, key, "them", time.Minute); err != nil {
		t.Fatalf("setup: %v", err)
	}
	ok, err = lease.NewClient(&failOnceStore{Store: held}, policy, nil).TryAcquire(ctx, key, "me", time.Minute)
	if err != nil || ok {
		t.Errorf("TryAcquire against a foreign lease = %v, %v; want false, nil", ok, err)
	}
}

// failOnceStore fails the first Create without touching the store.
type failOnceStore struct {
	lease.Store
	failed bool
}

func (f *failOnceStore) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if !f.failed {
		f.failed = true
		return false, errors.New("i/o timeout")
	}
	return f.Store.Create(ctx, key, owner, ttl)
}
