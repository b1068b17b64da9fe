package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"leasekeeper/internal/retry"
)

// Client exposes the lease operations used by the reconciler and the job
// lock. Every store call goes through the retry policy; an error returned
// from a Client method always wraps ErrStoreUnavailable or ErrInvalid.
type Client struct {
	store  Store
	policy retry.Policy
	logger *slog.Logger
}

// NewClient wraps store with the given retry policy.
func NewClient(store Store, policy retry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &Client{
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// TryAcquire creates the lease for owner if nobody holds it.
// It returns true iff owner holds the lease once the call returns: after a
// failed attempt, a lease already carrying owner counts as acquired.
func (c *Client) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := Validate(key, owner, ttl); err != nil {
		return false, err
	}

	var (
		acquired bool
		failed   bool
	)
	err := c.policy.Do(ctx, "try_acquire", func() error {
		var err error
		acquired, err = c.store.Create(ctx, key, owner, ttl)
		if err != nil {
			failed = true
			return err
		}
		if !acquired && failed {
			// A failed attempt may have created the lease before its reply was lost.
			current, found, err := c.store.Get(ctx, key)
			if err != nil {
				return err
			}
			acquired = found && current == owner
		}
		return nil
	})
	if err != nil {
		return false, unavailable("try_acquire", key, err)
	}

	c.logger.Debug("lease acquire attempted", "key", key, "owner", owner, "acquired", acquired)
	return acquired, nil
}

// RenewIfOwned extends the lease only if owner still holds it.
// A false result means the lease was lost; nothing was written.
func (c *Client) RenewIfOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if err := Validate(key, owner, ttl); err != nil {
		return false, err
	}

	var renewed bool
	err := c.policy.Do(ctx, "renew_if_owned", func() error {
		var err error
		renewed, err = c.store.Extend(ctx, key, owner, ttl)
		return err
	})
	if err != nil {
		return false, unavailable("renew_if_owned", key, err)
	}

	c.logger.Debug("lease renewal attempted", "key", key, "owner", owner, "renewed", renewed)
	return renewed, nil
}

// ReleaseIfOwned deletes the lease if owner holds it. Releasing a lease that
// is absent or held by someone else is a no-op.
func (c *Client) ReleaseIfOwned(ctx context.Context, key, owner string) error {
	if err := Validate(key, owner, time.Second); err != nil {
		return err
	}

	var deleted bool
	err := c.policy.Do(ctx, "release_if_owned", func() error {
		var err error
		deleted, err = c.store.Delete(ctx, key, owner)
		return err
	})
	if err != nil {
		return unavailable("release_if_owned", key, err)
	}

	c.logger.Debug("lease release attempted", "key", key, "owner", owner, "deleted", deleted)
	return nil
}

// ReadOwner returns the current holder of key, if any.
func (c *Client) ReadOwner(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateString(key); err != nil {
		return "", false, fmt.Errorf("%w: key: %v", ErrInvalid, err)
	}

	var (
		owner string
		found bool
	)
	err := c.policy.Do(ctx, "read_owner", func() error {
		var err error
		owner, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return "", false, unavailable("read_owner", key, err)
	}
	return owner, found, nil
}

// Ping checks the store is reachable, retrying per the policy.
func (c *Client) Ping(ctx context.Context) error {
	err := c.policy.Do(ctx, "ping", func() error {
		return c.store.Ping(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, key, ErrStoreUnavailable, err)
}
