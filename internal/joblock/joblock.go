// Package joblock runs a batch of one-shot calls on at most one instance at
// a time. It uses the same lease primitive as the supervisor, without
// renewal: acquire or skip, run, release.
package joblock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Lease is the subset of lease.Client the runner needs.
type Lease interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseIfOwned(ctx context.Context, key, owner string) error
}

// Call is one configured external call.
type Call struct {
	Name   string
	URL    string
	Method string // default: GET
}

// Result reports how a call went. Failures are data, not errors.
type Result struct {
	Name       string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// OK reports whether the call returned 200.
func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode == 200
}

// Caller performs one call. It never returns an error; failures are
// reported in the Result.
type Caller interface {
	Call(ctx context.Context, call Call) Result
}

// Report summarizes a run.
type Report struct {
	Acquired bool
	Results  []Result
}

// Failed returns the number of calls that did not succeed.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Runner runs calls under the job lock.
type Runner struct {
	lease  Lease
	caller Caller
	key    string
	owner  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRunner creates a Runner locking key as owner. ttl should cover the
// expected duration of a run.
func NewRunner(lease Lease, caller Caller, key, owner string, ttl time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		lease:  lease,
		caller: caller,
		key:    key,
		owner:  owner,
		ttl:    ttl,
		logger: logger.With("lock_key", key, "owner", owner),
	}
}

// Run acquires the lock, performs every call in order and releases the lock.
// If another instance holds the lock the run is skipped and Report.Acquired
// is false. The returned error is only about the lock, never about calls.
func (r *Runner) Run(ctx context.Context, calls []Call) (report Report, err error) {
	acquired, err := r.lease.TryAcquire(ctx, r.key, r.owner, r.ttl)
	if err != nil {
		return Report{}, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !acquired {
		r.logger.Error("failed to acquire job lock, skipping this run")
		return Report{}, nil
	}

	r.logger.Info("acquired job lock")
	report.Acquired = true

	defer func() {
		releaseErr := r.lease.ReleaseIfOwned(context.WithoutCancel(ctx), r.key, r.owner)
		if releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release job lock: %w", releaseErr))
			return
		}
		r.logger.Info("released job lock")
	}()

	for _, call := range calls {
		res := r.caller.Call(ctx, call)
		report.Results = append(report.Results, res)

		switch {
		case res.Err != nil:
			r.logger.Warn("error making call", "call", call.Name, "error", res.Err)
		case res.OK():
			r.logger.Info("call succeeded", "call", call.Name, "status", res.StatusCode, "duration", res.Duration)
		default:
			r.logger.Warn("call failed", "call", call.Name, "status", res.StatusCode, "duration", res.Duration)
		}
	}
	return report, nil
}
