// Package lease implements the time-bounded ownership claims that decide which
// instance may run a workload. The Client in this package wraps a Store
// backend with the retry policy; backends live in sub-packages.
package lease

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeySeparator joins the lock prefix and workload id into a lease key.
const KeySeparator = "::"

var (
	// ErrStoreUnavailable indicates the lease store could not be reached
	// after the retry policy was exhausted.
	ErrStoreUnavailable = errors.New("lease store unavailable")

	// ErrInvalid indicates a malformed key, owner token or ttl.
	ErrInvalid = errors.New("invalid lease request")
)

// Lease is one instance's claim on one lease key.
type Lease struct {
	Key        string
	Owner      string
	AcquiredAt time.Time
	TTL        time.Duration
}

// ExpiresAt is the earliest time at which the store may consider the lease gone.
func (l Lease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Expired reports whether the lease would have lapsed by now if never renewed.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt())
}

// Key builds the namespaced lease key for a workload.
func Key(prefix, workloadID string) string {
	if prefix == "" {
		return workloadID
	}
	return prefix + KeySeparator + workloadID
}

// Validate returns an error wrapping ErrInvalid if any argument is unusable.
func Validate(key, owner string, ttl time.Duration) error {
	if err := ValidateString(key); err != nil {
		return fmt.Errorf("%w: key: %v", ErrInvalid, err)
	}
	if err := ValidateString(owner); err != nil {
		return fmt.Errorf("%w: owner: %v", ErrInvalid, err)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %v", ErrInvalid, ttl)
	}
	return nil
}

// ValidateString rejects empty strings and strings containing whitespace.
func ValidateString(s string) error {
	if s == "" {
		return errors.New("string is empty")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return errors.New("string contains whitespace")
	}
	return nil
}
