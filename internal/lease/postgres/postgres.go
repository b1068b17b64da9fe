// Package postgres implements lease.Store on a PostgreSQL table. Every
// operation is a single conditional statement, so the database serialises
// competing instances.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"leasekeeper/internal/lease"
)

// Store provides a PostgreSQL-backed lease store.
type Store struct {
	db *sql.DB
}

var _ lease.Store = (*Store)(nil)

// New connects to PostgreSQL and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Ping implements lease.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
