// Package middleware adapts the rate limit decision engine to net/http.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"quotagate/internal/ratelimit/identity"
	"quotagate/internal/ratelimit/models"
	"quotagate/pkg/platform/httputil"
)

// Checker is the decision engine surface the middleware depends on.
type Checker interface {
	Check(ctx context.Context, r *http.Request) (*models.Result, *identity.Identity)
}

type Middleware struct {
	checker       Checker
	logger        *slog.Logger
	secureCookies bool
	disabled      bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithSecureCookies marks issued guest cookies Secure. Enable in production.
func WithSecureCookies(secure bool) Option {
	return func(m *Middleware) {
		m.secureCookies = secure
	}
}

func New(checker Checker, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		checker: checker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit guards a handler with the decision engine. Rate limit headers go
// on every response so clients can budget; rejections get 429 with
// Retry-After and the JSON error envelope. A freshly issued guest id is
// persisted here, at the HTTP boundary, keeping derivation itself pure.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		result, ident := m.checker.Check(r.Context(), r)

		if ident != nil && ident.GuestIssued {
			http.SetCookie(w, m.guestCookie(ident.GuestID))
		}

		addRateLimitHeaders(w, result)

		if !result.Allowed {
			writeRateLimitExceeded(w, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) guestCookie(guestID string) *http.Cookie {
	return &http.Cookie{
		Name:     identity.GuestCookieName,
		Value:    guestID,
		Path:     "/",
		MaxAge:   int(identity.GuestCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   m.secureCookies,
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    result.Error,
		RetryAfter: result.RetryAfter,
	})
}
