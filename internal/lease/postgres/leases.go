package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Create implements lease.Store. An existing row is only taken over once it
// has expired; the WHERE on the conflict branch makes that a single atomic
// statement.
func (s *Store) Create(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO leases (lease_key, owner, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), NOW() + ($3 * INTERVAL '1 millisecond'))
		ON CONFLICT (lease_key) DO UPDATE
		SET owner = EXCLUDED.owner,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at
		WHERE leases.expires_at <= NOW()
		RETURNING owner
	`

	var got string
	err := s.db.QueryRowContext(ctx, query, key, owner, ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lease %s: %w", key, err)
	}
	return got == owner, nil
}

// Extend implements lease.Store. The owner and expiry checks sit in the same
// UPDATE as the write, so an expired or re-acquired lease is never extended.
func (s *Store) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE leases
		SET expires_at = NOW() + ($3 * INTERVAL '1 millisecond')
		WHERE lease_key = $1 AND owner = $2 AND expires_at > NOW()
	`

	result, err := s.db.ExecContext(ctx, query, key, owner, ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to extend lease %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Delete implements lease.Store.
func (s *Store) Delete(ctx context.Context, key, owner string) (bool, error) {
	query := `DELETE FROM leases WHERE lease_key = $1 AND owner = $2`

	result, err := s.db.ExecContext(ctx, query, key, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete lease %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// Get implements lease.Store.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT owner FROM leases WHERE lease_key = $1 AND expires_at > NOW()`

	var owner string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read lease %s: %w", key, err)
	}
	return owner, true, nil
}
