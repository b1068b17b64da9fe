package lease

import (
	"context"
	"time"
)

// Store is the boundary to the external lease service. Implementations must
// make each method a single atomic operation against the service.
// A denied operation is reported through the bool result, never as an error.
type Store interface {
	// Create sets key to owner with the given expiry only if no unexpired
	// value exists. It reports whether this call created the lease.
	Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Extend resets the expiry of key to ttl if, and only if, its current
	// unexpired value equals owner.
	Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Delete removes key if its current value equals owner.
	Delete(ctx context.Context, key, owner string) (bool, error)

	// Get returns the current unexpired owner of key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Ping checks that the service is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection to the service.
	Close() error
}
