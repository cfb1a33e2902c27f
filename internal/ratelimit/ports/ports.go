// Package ports defines shared interfaces for the ratelimit module.
// Interfaces live here when consumed by multiple packages to avoid
// duplication and import cycles.
package ports

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"quotagate/internal/auth"
	"quotagate/internal/ratelimit/models"
)

// CounterStore manages sliding window rate limit counters. Allow must be a
// single atomic round trip that both records the attempt and reports whether
// it was within budget; the engine adds no locking of its own across
// concurrent requests for the same key.
type CounterStore interface {
	// Allow checks if a single request is allowed and consumes one slot if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error

	// Count returns the current request count in the window.
	Count(ctx context.Context, key string) (int, error)
}

// SessionProvider resolves the caller's session from request credentials.
// A nil session with a nil error means the caller is unauthenticated.
type SessionProvider interface {
	Session(ctx context.Context, r *http.Request) (*auth.Session, error)
}

// SubscriptionLookup answers whether a user holds an active or trialing
// subscription. Lookup failures are degraded by callers to "no subscription",
// never to paid.
type SubscriptionLookup interface {
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
}

// AuditEvent captures a rate limit decision worth keeping.
type AuditEvent struct {
	Action     string    `json:"action"`
	Role       string    `json:"role"`
	Identifier string    `json:"identifier"`
	Limit      int       `json:"limit"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditPublisher emits audit events for security-relevant decisions.
type AuditPublisher interface {
	Emit(ctx context.Context, event AuditEvent) error
}

// LogAudit logs an audit event to the structured logger and, when a
// publisher is configured, emits it downstream. Publisher failures are
// logged and swallowed; auditing never blocks a decision.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event AuditEvent, attrs ...any) {
	args := append(attrs,
		"event", event.Action,
		"role", event.Role,
		"identifier", event.Identifier,
		"log_type", "audit",
	)
	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
