// Package billing looks up subscription state for role resolution. The
// billing provider owns the subscriptions table; this package only reads it.
package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscription statuses that count as paid.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
)

// PostgresSubscriptions reads subscription state from the billing database.
type PostgresSubscriptions struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed subscription lookup.
func NewPostgres(pool *pgxpool.Pool) *PostgresSubscriptions {
	return &PostgresSubscriptions{pool: pool}
}

// HasActiveSubscription reports whether the user holds an active or
// trialing subscription.
func (s *PostgresSubscriptions) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = ANY($2)
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, userID, []string{StatusActive, StatusTrialing}).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check subscription for user: %w", err)
	}
	return exists, nil
}

// MemorySubscriptions is an in-memory subscription lookup for dev and tests.
type MemorySubscriptions struct {
	mu       sync.RWMutex
	statuses map[string]string // user id -> status
}

// NewMemory creates an empty in-memory subscription lookup.
func NewMemory() *MemorySubscriptions {
	return &MemorySubscriptions{statuses: make(map[string]string)}
}

// Set records the subscription status for a user.
func (s *MemorySubscriptions) Set(userID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status
}

// HasActiveSubscription reports whether the user holds an active or
// trialing subscription.
func (s *MemorySubscriptions) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.statuses[userID]
	return status == StatusActive || status == StatusTrialing, nil
}
