// Package redis implements lease.Store on a Redis server. Acquisition uses
// SET NX PX; renewal and release run as Lua scripts so the ownership check
// and the write are one atomic step on the server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"leasekeeper/internal/lease"
)

// extendScript resets the expiry only while the caller's token is stored.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// deleteScript removes the key only while the caller's token is stored.
var deleteScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds connection attempts; zero uses the client default.
	DialTimeout time.Duration
}

// Store is a lease.Store backed by Redis.
type Store struct {
	client *goredis.Client
}

var _ lease.Store = (*Store)(nil)

// New creates a Redis-backed store. It does not contact the server; call
// Ping to verify connectivity.
func New(opts Options) *Store {
	return &Store{
		client: goredis.NewClient(&goredis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: opts.DialTimeout,
		}),
	}
}

// Create implements lease.Store.
func (s *Store) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis set nx %s: %w", key, err)
	}
	return ok, nil
}

// Extend implements lease.Store.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, s.client, []string{key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis extend %s: %w", key, err)
	}
	return n == 1, nil
}

// Delete implements lease.Store.
func (s *Store) Delete(ctx context.Context, key, owner string) (bool, error) {
	n, err := deleteScript.Run(ctx, s.client, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("redis delete %s: %w", key, err)
	}
	return n == 1, nil
}

// Get implements lease.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	owner, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return owner, true, nil
}

// Ping implements lease.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close implements lease.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
