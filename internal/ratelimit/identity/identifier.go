package identity

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quotagate/internal/auth"
	"quotagate/internal/ratelimit/models"
)

// GuestCookieName is the cookie carrying the persistent anonymous device id.
const GuestCookieName = "guest_id"

// GuestCookieMaxAge is the guest cookie lifetime: 30 days.
const GuestCookieMaxAge = 30 * 24 * time.Hour

// RequestMeta is the request-derived input to identifier derivation,
// separated from *http.Request so derivation stays a pure function of data.
type RequestMeta struct {
	Header  http.Header
	GuestID string // from the guest_id cookie; empty when absent
}

// MetaFromRequest extracts derivation inputs from an inbound request.
func MetaFromRequest(r *http.Request) RequestMeta {
	meta := RequestMeta{Header: r.Header}
	if c, err := r.Cookie(GuestCookieName); err == nil {
		meta.GuestID = c.Value
	}
	return meta
}

// Identity is the derived caller identity for one request.
type Identity struct {
	Role models.Role
	// Key is the identifier scoping quota counting within the role.
	// Deterministic: unchanged request metadata always yields the same key.
	Key string
	// GuestID is the guest cookie value in effect for this request.
	GuestID string
	// GuestIssued signals that GuestID was generated during this derivation
	// and still needs to be persisted via Set-Cookie by the HTTP layer. The
	// derived Key already uses the fresh value even if persistence fails.
	GuestIssued bool
	// Bot marks User-Agents classified as automated clients. Audit only.
	Bot bool
}

// Deriver computes caller identifiers.
type Deriver struct {
	logger     *slog.Logger
	newGuestID func() string
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithDeriverLogger sets the logger used for defensive-path warnings.
func WithDeriverLogger(logger *slog.Logger) DeriverOption {
	return func(d *Deriver) {
		d.logger = logger
	}
}

// NewDeriver creates an identifier deriver.
func NewDeriver(opts ...DeriverOption) *Deriver {
	d := &Deriver{newGuestID: newGuestID}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive computes the identity for a caller. Registered and paid callers are
// identified by user id; anonymous callers by a composition of client IP,
// browser fingerprint, and guest cookie id according to cfg's flags.
func (d *Deriver) Derive(role models.Role, session *auth.Session, meta RequestMeta, cfg models.Config) Identity {
	if role != models.RoleAnonymous {
		if session != nil && session.User != nil && session.User.ID != "" {
			return Identity{Role: role, Key: models.SanitizeKeySegment(session.User.ID)}
		}
		// Defensive: a non-anonymous role without a user id falls back to
		// the anonymous derivation rather than sharing one empty key.
		if d.logger != nil {
			d.logger.Warn("non-anonymous role without user id, deriving anonymous identifier", "role", role)
		}
	}

	ident := Identity{Role: role, Bot: IsBot(meta.Header)}

	ip := ClientIP(meta.Header)
	key := ip

	if cfg.UseBrowserFingerprint {
		fp := Fingerprint(meta.Header)
		if cfg.HandleSharedNetworks && IsSharedNetwork(ip) {
			// Fingerprint leads so distinct devices behind one NAT stay
			// distinguishable; the IP is kept only at /16 granularity.
			key = "shared:" + fp + ":" + networkPrefix(ip)
		} else {
			key = ip + ":" + fp
		}
	}

	if cfg.UseGuestCookie {
		ident.GuestID = meta.GuestID
		if ident.GuestID == "" {
			ident.GuestID = d.newGuestID()
			ident.GuestIssued = true
		}
		key = "g:" + models.SanitizeKeySegment(ident.GuestID) + ":" + key
	}

	ident.Key = key
	return ident
}

// newGuestID returns a random opaque token, preferring a cryptographically
// random UUID and degrading to a pseudo-random token if the system RNG is
// unavailable.
func newGuestID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fmt.Sprintf("%x-%x", time.Now().UnixNano(), rand.Uint64())
}
