// Package store is the client for the external message metadata store. The
// back-fill engine never deletes records; it only upserts computed metadata
// fields onto existing message rows.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrBatchTooLarge is returned when a batch upsert exceeds the store's
// documented per-call item ceiling. Callers must split, never the store.
var ErrBatchTooLarge = errors.New("batch exceeds per-call ceiling")

// ErrMessageNotFound is returned when no metadata row exists for an id.
var ErrMessageNotFound = errors.New("message not found")

// Store is an explicitly constructed client. Each back-fill job owns its own
// Store for the job's lifetime; there is no shared global connection.
type Store struct {
	pool    *pgxpool.Pool
	ceiling int
}

func New(ctx context.Context, databaseURL string, ceiling int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, ceiling: ceiling}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ceiling returns the per-call batch item ceiling.
func (s *Store) Ceiling() int {
	return s.ceiling
}
