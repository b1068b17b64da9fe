package joblock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leasekeeper/internal/lease"
	"leasekeeper/internal/lease/memory"
	"leasekeeper/internal/retry"
)

var discard = slog.New(slog.DiscardHandler)

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ok", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"setup":"joke"}`))
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(store lease.Store) *lease.Client {
	return lease.NewClient(store, retry.Policy{Attempts: 1, Delay: time.Millisecond}, discard)
}

func TestRun_AcquiresCallsAndReleases(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	store := memory.New(nil)
	client := newClient(store)

	runner := NewRunner(client, NewHTTPCaller(time.Second, 0), "job_lock", "host-a:1:aaaaaaaa", 300*time.Second, discard)
	report, err := runner.Run(context.Background(), []Call{
		{Name: "joke_api", URL: srv.URL + "/ok"},
		{Name: "broken_api", URL: srv.URL + "/broken"},
		{Name: "unreachable_api", URL: "http://127.0.0.1:1/"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Acquired {
		t.Fatal("expected the lock to be acquired")
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	if !report.Results[0].OK() {
		t.Errorf("joke_api should succeed: %+v", report.Results[0])
	}
	if report.Results[1].OK() || report.Results[1].StatusCode != http.StatusInternalServerError {
		t.Errorf("broken_api should fail with 500: %+v", report.Results[1])
	}
	if report.Results[2].Err == nil {
		t.Errorf("unreachable_api should report an error: %+v", report.Results[2])
	}
	if report.Failed() != 2 {
		t.Errorf("Failed() = %d, want 2", report.Failed())
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}

	if _, found, _ := client.ReadOwner(context.Background(), "job_lock"); found {
		t.Error("lock should be released after the run")
	}
}

func TestRun_SkipsWhenLockHeld(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	store := memory.New(nil)
	client := newClient(store)

	if ok, _ := client.TryAcquire(context.Background(), "job_lock", "host-b:1:bbbbbbbb", time.Minute); !ok {
		t.Fatal("setup: failed to acquire")
	}

	runner := NewRunner(client, NewHTTPCaller(time.Second, 0), "job_lock", "host-a:1:aaaaaaaa", time.Minute, discard)
	report, err := runner.Run(context.Background(), []Call{{Name: "joke_api", URL: srv.URL + "/ok"}})
	if err != nil {
		t.Fatalf("contention must not be an error: %v", err)
	}
	if report.Acquired || len(report.Results) != 0 {
		t.Errorf("expected skipped run, got %+v", report)
	}
	if hits.Load() != 0 {
		t.Error("no call should be made without the lock")
	}

	owner, _, _ := client.ReadOwner(context.Background(), "job_lock")
	if owner != "host-b:1:bbbbbbbb" {
		t.Errorf("the holder's lock must be untouched, owner = %q", owner)
	}
}

func TestRun_StoreUnavailable(t *testing.T) {
	store := memory.New(nil)
	store.SetFailure(errors.New("connection refused"))

	runner := NewRunner(newClient(store), NewHTTPCaller(time.Second, 0), "job_lock", "host-a:1:aaaaaaaa", time.Minute, discard)
	_, err := runner.Run(context.Background(), nil)
	if !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRun_ReleaseFailureIsReported(t *testing.T) {
	store := memory.New(nil)
	caller := callerFunc(func(ctx context.Context, c Call) Result {
		store.SetFailure(errors.New("connection reset"))
		return Result{Name: c.Name, StatusCode: http.StatusOK}
	})

	runner := NewRunner(newClient(store), caller, "job_lock", "host-a:1:aaaaaaaa", time.Minute, discard)
	report, err := runner.Run(context.Background(), []Call{{Name: "joke_api"}})
	if !report.Acquired {
		t.Fatal("expected the lock to be acquired")
	}
	if !errors.Is(err, lease.ErrStoreUnavailable) {
		t.Errorf("expected release error, got %v", err)
	}
}

type callerFunc func(ctx context.Context, c Call) Result

func (f callerFunc) Call(ctx context.Context, c Call) Result { return f(ctx, c) }

func TestHTTPCaller_RateLimitHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, &hits)
	caller := NewHTTPCaller(time.Second, 0.001)

	// The first call spends the only token.
	if res := caller.Call(context.Background(), Call{Name: "first", URL: srv.URL + "/ok"}); !res.OK() {
		t.Fatalf("first call failed: %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := caller.Call(ctx, Call{Name: "second", URL: srv.URL + "/ok"})
	if res.Err == nil {
		t.Error("expected the limiter to refuse a call it cannot schedule in time")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestHTTPCaller_BadURL(t *testing.T) {
	res := NewHTTPCaller(time.Second, 0).Call(context.Background(), Call{Name: "bad", URL: "://nope"})
	if res.Err == nil {
		t.Error("expected an error for a malformed URL")
	}
	if res.Name != "bad" {
		t.Errorf("Name = %q", res.Name)
	}
}
