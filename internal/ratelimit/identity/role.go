// Package identity derives the caller's role and the stable identifier that
// scopes quota counting for that caller within the role.
package identity

import (
	"context"
	"log/slog"

	"quotagate/internal/auth"
	"quotagate/internal/ratelimit/models"
	"quotagate/internal/ratelimit/ports"
)

// Resolver maps sessions to roles. Precedence is paid > registered >
// anonymous; every failure path degrades toward the less-privileged role,
// so the resolver never returns an error.
type Resolver struct {
	subscriptions ports.SubscriptionLookup
	logger        *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for degradation warnings.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a role resolver. A nil subscription lookup is valid:
// no signed-in caller can then resolve above registered.
func NewResolver(subscriptions ports.SubscriptionLookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{subscriptions: subscriptions}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the role for a session, evaluated in order:
// no session -> anonymous; guest auth record -> anonymous; active or
// trialing subscription -> paid; otherwise registered.
func (r *Resolver) Resolve(ctx context.Context, session *auth.Session) models.Role {
	if session == nil || session.User == nil || session.User.ID == "" {
		return models.RoleAnonymous
	}
	if session.User.Anonymous {
		return models.RoleAnonymous
	}

	if r.subscriptions != nil {
		subscribed, err := r.subscriptions.HasActiveSubscription(ctx, session.User.ID)
		if err != nil {
			// Fail toward the less-privileged role, never toward paid.
			if r.logger != nil {
				r.logger.WarnContext(ctx, "subscription lookup failed, treating as unsubscribed",
					"user_id", session.User.ID, "error", err)
			}
			return models.RoleRegistered
		}
		if subscribed {
			return models.RolePaid
		}
	}

	return models.RoleRegistered
}
