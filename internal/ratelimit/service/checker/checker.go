// Package checker implements the rate limit decision engine: role
// resolution, identifier derivation, and quota enforcement against the
// shared counter store.
//
// The engine is deliberately fail-open. No dependency outage ever surfaces
// to the end user as a hard error; the worst observable outcome is that
// enforcement silently stops while the degradation is logged and exported
// as a metric. Deployments wanting fail-closed must opt in explicitly by
// fronting the engine themselves.
package checker

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"quotagate/internal/auth"
	rlconfig "quotagate/internal/ratelimit/config"
	"quotagate/internal/ratelimit/identity"
	"quotagate/internal/ratelimit/metrics"
	"quotagate/internal/ratelimit/models"
	"quotagate/internal/ratelimit/ports"
)

// bypassRemaining is the sentinel remaining count reported when the counter
// store is unconfigured and every check is allowed.
const bypassRemaining = 999

var errMissingRegistry = errors.New("config registry is required")

// Service is the rate limit decision engine.
type Service struct {
	registry      *rlconfig.Registry
	sessions      ports.SessionProvider
	store         ports.CounterStore // nil means unconfigured: bypass mode
	subscriptions ports.SubscriptionLookup
	resolver      *identity.Resolver
	deriver       *identity.Deriver
	logger        *slog.Logger
	metrics       *metrics.Metrics
	audit         ports.AuditPublisher
	tracer        trace.Tracer

	// One limiter per role, built at most once. Role registrations after a
	// limiter exists take effect only for roles not yet seen.
	mu       sync.RWMutex
	limiters map[models.Role]*roleLimiter
	group    singleflight.Group

	// Unconfigured-store warning fires once per process, not per request.
	bypassWarn sync.Once
}

// roleLimiter binds a role's config to its counting namespace.
type roleLimiter struct {
	role models.Role
	cfg  models.Config
}

// key namespaces the counter key by role, so registered and paid stay
// isolated even though both use the "user" prefix.
func (l *roleLimiter) key(identifier string) string {
	return string(l.role) + ":" + models.NewCounterKey(l.role, identifier).String()
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

// WithSubscriptions wires the external subscription service used to promote
// registered callers to paid.
func WithSubscriptions(lookup ports.SubscriptionLookup) Option {
	return func(s *Service) {
		s.subscriptions = lookup
	}
}

// New creates the decision engine. A nil store is valid and puts the engine
// in bypass mode; a nil sessions provider treats every caller as anonymous.
// The registry must carry configs for all built-in roles.
func New(registry *rlconfig.Registry, sessions ports.SessionProvider, store ports.CounterStore, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, errMissingRegistry
	}

	svc := &Service{
		registry: registry,
		sessions: sessions,
		store:    store,
		limiters: make(map[models.Role]*roleLimiter),
		tracer:   otel.Tracer("quotagate/ratelimit"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.resolver = identity.NewResolver(svc.subscriptions, identity.WithResolverLogger(svc.logger))
	svc.deriver = identity.NewDeriver(identity.WithDeriverLogger(svc.logger))

	// Missing built-in configs are a startup-time invariant violation, the
	// one case allowed to be a hard failure.
	for _, role := range []models.Role{models.RoleAnonymous, models.RoleRegistered, models.RolePaid} {
		if _, err := registry.Get(role); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

// Check runs the full decision path for an inbound request: resolve session
// (fails soft to no session), determine role, derive identifier, check
// quota. The returned identity carries the guest cookie persistence signal
// for the HTTP layer. Never returns an error to the caller.
func (s *Service) Check(ctx context.Context, r *http.Request) (*models.Result, *identity.Identity) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.Check")
	defer span.End()

	session, err := s.sessionFor(ctx, r)
	if err != nil {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "session resolution failed, treating as unauthenticated", "error", err)
		}
		session = nil
	}

	role := s.resolver.Resolve(ctx, session)

	lim, err := s.getLimiter(role)
	if err != nil {
		// Unreachable for built-in roles; degrade to allow rather than 500.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "no limiter for resolved role, allowing request", "role", role, "error", err)
		}
		return &models.Result{Allowed: true, Role: role, Bypassed: true, ResetAt: time.Unix(0, 0)}, &identity.Identity{Role: role}
	}

	ident := s.deriver.Derive(role, session, identity.MetaFromRequest(r), lim.cfg)
	if ident.GuestIssued && s.metrics != nil {
		s.metrics.RecordGuestCookieIssued()
	}

	result := s.checkWithLimiter(ctx, lim, ident.Key)

	span.SetAttributes(
		attribute.String("ratelimit.role", role.String()),
		attribute.Bool("ratelimit.allowed", result.Allowed),
		attribute.Bool("ratelimit.bypassed", result.Bypassed),
	)
	return result, &ident
}

// CheckQuota enforces the role's quota for an already-derived identifier.
// The only possible error is an unknown role, a programmer error; every
// store failure degrades to an allowed, bypassed result.
func (s *Service) CheckQuota(ctx context.Context, role models.Role, identifier string) (*models.Result, error) {
	lim, err := s.getLimiter(role)
	if err != nil {
		return nil, err
	}
	return s.checkWithLimiter(ctx, lim, identifier), nil
}

func (s *Service) checkWithLimiter(ctx context.Context, lim *roleLimiter, identifier string) *models.Result {
	role, cfg := lim.role, lim.cfg

	if s.store == nil {
		s.bypassWarn.Do(func() {
			if s.logger != nil {
				s.logger.Warn("counter store unconfigured, rate limiting bypassed for all requests")
			}
		})
		s.record(role, metrics.OutcomeBypassed)
		return &models.Result{
			Allowed:    true,
			Limit:      cfg.Limit,
			Remaining:  bypassRemaining,
			ResetAt:    time.Unix(0, 0),
			Role:       role,
			Identifier: identifier,
			Bypassed:   true,
		}
	}

	result, err := s.store.Allow(ctx, lim.key(identifier), cfg.Limit, cfg.Window)
	if err != nil {
		// Fail open: availability over strict enforcement.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "counter store check failed, bypassing rate limit",
				"role", role, "error", err)
		}
		if s.metrics != nil {
			s.metrics.SetDegraded(true)
		}
		s.record(role, metrics.OutcomeBypassed)
		return &models.Result{
			Allowed:    true,
			Limit:      cfg.Limit,
			Remaining:  0,
			ResetAt:    time.Unix(0, 0),
			Role:       role,
			Identifier: identifier,
			Bypassed:   true,
		}
	}
	if s.metrics != nil {
		s.metrics.SetDegraded(false)
	}

	result.Role = role
	result.Identifier = identifier
	if result.Allowed {
		s.record(role, metrics.OutcomeAllowed)
		return result
	}

	result.Error = models.ExceededMessage(cfg)
	result.RetryAfter = retryAfter(result.ResetAt)
	s.record(role, metrics.OutcomeLimited)
	ports.LogAudit(ctx, s.logger, s.audit, ports.AuditEvent{
		Action:     "rate_limit_exceeded",
		Role:       role.String(),
		Identifier: identifier,
		Limit:      cfg.Limit,
		OccurredAt: time.Now(),
	})
	return result
}

// getLimiter returns the cached limiter for a role, constructing it at most
// once via singleflight. A limiter snapshots the role's config; later
// registrations for the same role do not disturb it.
func (s *Service) getLimiter(role models.Role) (*roleLimiter, error) {
	s.mu.RLock()
	lim := s.limiters[role]
	s.mu.RUnlock()
	if lim != nil {
		return lim, nil
	}

	v, err, _ := s.group.Do(string(role), func() (any, error) {
		s.mu.RLock()
		existing := s.limiters[role]
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		cfg, err := s.registry.Get(role)
		if err != nil {
			return nil, err
		}
		built := &roleLimiter{role: role, cfg: cfg}

		s.mu.Lock()
		s.limiters[role] = built
		s.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*roleLimiter), nil
}

func (s *Service) sessionFor(ctx context.Context, r *http.Request) (*auth.Session, error) {
	if s.sessions == nil {
		return nil, nil
	}
	return s.sessions.Session(ctx, r)
}

func (s *Service) record(role models.Role, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCheck(role.String(), outcome)
	}
}

// retryAfter converts a reset time to whole seconds from now, floored at 0.
func retryAfter(resetAt time.Time) int {
	secs := int(math.Ceil(time.Until(resetAt).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
