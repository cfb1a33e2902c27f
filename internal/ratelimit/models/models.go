package models

import (
	"errors"
	"fmt"
	"time"
)

// Role classifies a caller for rate limiting purposes. Roles drive which
// quota config and which identifier strategy apply. Derived per request,
// never persisted.
type Role string

const (
	// RoleAnonymous: no session, or a guest auth record.
	RoleAnonymous Role = "anonymous"
	// RoleRegistered: signed-in user without an active subscription.
	RoleRegistered Role = "registered"
	// RolePaid: signed-in user with an active or trialing subscription.
	RolePaid Role = "paid"
)

// IsValid checks if the role is one of the built-in enum values.
// Custom roles registered at runtime are validated against the registry,
// not against this enum.
func (r Role) IsValid() bool {
	switch r {
	case RoleAnonymous, RoleRegistered, RolePaid:
		return true
	}
	return false
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// Config is the immutable per-role rate limit configuration.
type Config struct {
	// Limit is the number of requests allowed per Window.
	Limit int `json:"limit"`
	// Window is the sliding window duration.
	Window time.Duration `json:"window"`
	// DisplayName is interpolated into user-facing rejection messages.
	DisplayName string `json:"display_name"`
	// UseBrowserFingerprint mixes a weak header fingerprint into
	// anonymous identifiers.
	UseBrowserFingerprint bool `json:"use_browser_fingerprint"`
	// HandleSharedNetworks masks RFC1918 client IPs down to their first
	// two octets so distinct devices behind one NAT are told apart by
	// fingerprint rather than lumped together by IP.
	HandleSharedNetworks bool `json:"handle_shared_networks"`
	// UseGuestCookie prefixes anonymous identifiers with the persistent
	// guest cookie id.
	UseGuestCookie bool `json:"use_guest_cookie"`
}

// Validate enforces config invariants.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if c.DisplayName == "" {
		return errors.New("display name is required")
	}
	return nil
}

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	Role       Role      `json:"role"`
	Identifier string    `json:"identifier"`
	// Bypassed marks degraded-mode results where enforcement was skipped
	// because the counter store is unconfigured or unavailable.
	Bypassed bool `json:"bypassed,omitempty"`
	// Error is the human-readable rejection message, only set when not allowed.
	Error string `json:"error,omitempty"`
}

// ExceededMessage builds the user-facing rejection message for a role config.
func ExceededMessage(cfg Config) string {
	return fmt.Sprintf("Rate limit exceeded. %s users are limited to %d requests per %s.",
		cfg.DisplayName, cfg.Limit, windowPhrase(cfg.Window))
}

func windowPhrase(window time.Duration) string {
	switch window {
	case 24 * time.Hour:
		return "day"
	case time.Hour:
		return "hour"
	case time.Minute:
		return "minute"
	default:
		return window.String()
	}
}
