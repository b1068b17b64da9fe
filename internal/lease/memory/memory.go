// Package memory implements lease.Store in process memory. It backs
// single-instance development runs and is the simulated store used to test
// the reconciler against concurrent instances.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"leasekeeper/internal/lease"
)

type entry struct {
	owner     string
	expiresAt time.Time
}

// Store is a lease.Store whose expiry follows the supplied clock.
type Store struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
	failure error
	writes  int
}

var _ lease.Store = (*Store)(nil)

// New returns an empty store. A nil clock means the wall clock.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

// Create implements lease.Store.
func (s *Store) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return false, s.failure
	}
	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.entries[key] = entry{owner: owner, expiresAt: s.clock.Now().Add(ttl)}
	s.writes++
	return true, nil
}

// Extend implements lease.Store. The ownership check and the expiry reset
// happen under one lock, so an expired lease can never be revived.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return false, s.failure
	}
	e, ok := s.liveLocked(key)
	if !ok || e.owner != owner {
		return false, nil
	}
	e.expiresAt = s.clock.Now().Add(ttl)
	s.entries[key] = e
	s.writes++
	return true, nil
}

// Delete implements lease.Store.
func (s *Store) Delete(ctx context.Context, key, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return false, s.failure
	}
	e, ok := s.entries[key]
	if !ok || e.owner != owner {
		return false, nil
	}
	delete(s.entries, key)
	s.writes++
	return true, nil
}

// Get implements lease.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return "", false, s.failure
	}
	e, ok := s.liveLocked(key)
	if !ok {
		return "", false, nil
	}
	return e.owner, true, nil
}

// Ping implements lease.Store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Close implements lease.Store.
func (s *Store) Close() error {
	return nil
}

// SetFailure makes every subsequent operation return err until it is
// cleared with a nil argument.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Writes returns how many successful mutations the store has applied.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ExpiresAt returns the expiry of the live lease at key.
func (s *Store) ExpiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	return e.expiresAt, ok
}

// liveLocked returns the entry at key if it has not expired, dropping it
// otherwise. The caller must hold s.mu.
func (s *Store) liveLocked(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}
