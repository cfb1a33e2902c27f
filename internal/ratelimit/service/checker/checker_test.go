package checker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quotagate/internal/auth"
	rlconfig "quotagate/internal/ratelimit/config"
	"quotagate/internal/ratelimit/models"
	"quotagate/internal/ratelimit/ports"
	"quotagate/internal/ratelimit/store/counter"
)

// fakeSessions returns a canned session.
type fakeSessions struct {
	session *auth.Session
	err     error
}

func (f *fakeSessions) Session(_ context.Context, _ *http.Request) (*auth.Session, error) {
	return f.session, f.err
}

// failingStore errors on every call, simulating a counter store outage.
type failingStore struct{}

func (failingStore) Allow(_ context.Context, _ string, _ int, _ time.Duration) (*models.Result, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Reset(_ context.Context, _ string) error { return errors.New("connection refused") }

func (failingStore) Count(_ context.Context, _ string) (int, error) {
	return 0, errors.New("connection refused")
}

// fakeSubscriptions is a canned subscription lookup.
type fakeSubscriptions struct {
	subscribed bool
	err        error
}

func (f *fakeSubscriptions) HasActiveSubscription(_ context.Context, _ string) (bool, error) {
	return f.subscribed, f.err
}

type CheckerSuite struct {
	suite.Suite
	ctx context.Context
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *CheckerSuite) newService(store ports.CounterStore, opts ...Option) *Service {
	svc, err := New(rlconfig.NewRegistry(), nil, store, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *CheckerSuite) TestNew() {
	s.Run("nil registry returns error", func() {
		_, err := New(nil, nil, counter.NewMemory())
		s.Error(err)
	})

	s.Run("nil store and sessions are valid", func() {
		svc, err := New(rlconfig.NewRegistry(), nil, nil)
		s.NoError(err)
		s.NotNil(svc)
	})
}

func (s *CheckerSuite) TestCheckQuota() {
	s.Run("quota boundary for a registered user", func() {
		registry := rlconfig.NewRegistry()
		// Tight limit so the boundary is reachable.
		s.Require().NoError(registry.Register(models.RoleRegistered, models.Config{
			Limit: 3, Window: time.Hour, DisplayName: "Registered",
		}))
		svc, err := New(registry, nil, counter.NewMemory())
		s.Require().NoError(err)

		for i := range 3 {
			result, err := svc.CheckQuota(s.ctx, models.RoleRegistered, "user-1")
			s.Require().NoError(err)
			s.True(result.Allowed, "call %d should be allowed", i+1)
			s.Equal(3-i-1, result.Remaining)
			s.Empty(result.Error)
		}

		result, err := svc.CheckQuota(s.ctx, models.RoleRegistered, "user-1")
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Contains(result.Error, "Registered")
		s.Contains(result.Error, "3")
		s.Equal(models.RoleRegistered, result.Role)
		s.Equal("user-1", result.Identifier)
	})

	s.Run("registered and paid quotas are isolated for one identifier", func() {
		registry := rlconfig.NewRegistry()
		s.Require().NoError(registry.Register(models.RoleRegistered, models.Config{
			Limit: 1, Window: time.Hour, DisplayName: "Registered",
		}))
		svc, err := New(registry, nil, counter.NewMemory())
		s.Require().NoError(err)

		result, err := svc.CheckQuota(s.ctx, models.RoleRegistered, "user-1")
		s.Require().NoError(err)
		s.True(result.Allowed)

		result, err = svc.CheckQuota(s.ctx, models.RoleRegistered, "user-1")
		s.Require().NoError(err)
		s.False(result.Allowed)

		// Same identifier under paid still has its full budget.
		result, err = svc.CheckQuota(s.ctx, models.RolePaid, "user-1")
		s.Require().NoError(err)
		s.True(result.Allowed)
	})

	s.Run("unknown role returns error", func() {
		svc := s.newService(counter.NewMemory())
		_, err := svc.CheckQuota(s.ctx, "mystery", "id-1")
		s.Error(err)
	})

	s.Run("custom role registered at runtime is honored", func() {
		registry := rlconfig.NewRegistry()
		svc, err := New(registry, nil, counter.NewMemory())
		s.Require().NoError(err)

		s.Require().NoError(registry.Register("partner", models.Config{
			Limit: 2, Window: time.Hour, DisplayName: "Partner",
		}))

		result, err := svc.CheckQuota(s.ctx, "partner", "acme")
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(1, result.Remaining)
	})
}

func (s *CheckerSuite) TestDegradedModes() {
	s.Run("unconfigured store bypasses with sentinel remaining", func() {
		svc := s.newService(nil)

		result, err := svc.CheckQuota(s.ctx, models.RoleAnonymous, "203.0.113.9")
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.True(result.Bypassed)
		s.Equal(bypassRemaining, result.Remaining)
		s.Equal(int64(0), result.ResetAt.Unix())
		s.Equal(models.RoleAnonymous, result.Role)
		s.Equal("203.0.113.9", result.Identifier)
	})

	s.Run("store outage fails open", func() {
		svc := s.newService(failingStore{})

		for range 10 {
			result, err := svc.CheckQuota(s.ctx, models.RoleAnonymous, "203.0.113.9")
			s.Require().NoError(err)
			s.True(result.Allowed, "outage must never reject a request")
			s.True(result.Bypassed)
			s.Equal(0, result.Remaining)
		}
	})
}

func (s *CheckerSuite) TestCheck() {
	newChatRequest := func(cookies ...*http.Cookie) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
		r.Header.Set("User-Agent", "TestAgent/1.0")
		for _, c := range cookies {
			r.AddCookie(c)
		}
		return r
	}

	s.Run("anonymous caller walks the full quota then is rejected", func() {
		svc := s.newService(counter.NewMemory())

		first, ident := svc.Check(s.ctx, newChatRequest())
		s.True(first.Allowed)
		s.Equal(4, first.Remaining, "anonymous limit is 5, one consumed")
		s.Equal(models.RoleAnonymous, first.Role)
		s.Require().NotNil(ident)
		s.True(ident.GuestIssued, "first sighting issues a guest id")
		s.NotEmpty(ident.GuestID)

		// Subsequent requests present the persisted cookie, pinning identity.
		cookie := &http.Cookie{Name: "guest_id", Value: ident.GuestID}
		var result *models.Result
		for range 4 {
			result, _ = svc.Check(s.ctx, newChatRequest(cookie))
			s.True(result.Allowed)
		}
		s.Equal(0, result.Remaining)

		result, _ = svc.Check(s.ctx, newChatRequest(cookie))
		s.False(result.Allowed)
		s.Equal(0, result.Remaining)
		s.Contains(result.Error, "Anonymous")
		s.Contains(result.Error, "5")
		s.Positive(result.RetryAfter)
	})

	s.Run("cookie-bearing caller does not get a new guest id", func() {
		svc := s.newService(counter.NewMemory())
		cookie := &http.Cookie{Name: "guest_id", Value: "guest-1"}

		_, ident := svc.Check(s.ctx, newChatRequest(cookie))
		s.Require().NotNil(ident)
		s.False(ident.GuestIssued)
		s.Equal("guest-1", ident.GuestID)
	})

	s.Run("session failure degrades to anonymous", func() {
		svc, err := New(rlconfig.NewRegistry(),
			&fakeSessions{err: errors.New("token expired")},
			counter.NewMemory(),
		)
		s.Require().NoError(err)

		result, _ := svc.Check(s.ctx, newChatRequest())
		s.True(result.Allowed)
		s.Equal(models.RoleAnonymous, result.Role)
	})

	s.Run("subscribed session checks the paid quota", func() {
		session := &auth.Session{User: &auth.User{ID: "user-7"}}
		svc, err := New(rlconfig.NewRegistry(),
			&fakeSessions{session: session},
			counter.NewMemory(),
			WithSubscriptions(&fakeSubscriptions{subscribed: true}),
		)
		s.Require().NoError(err)

		result, ident := svc.Check(s.ctx, newChatRequest())
		s.True(result.Allowed)
		s.Equal(models.RolePaid, result.Role)
		s.Equal(99, result.Remaining, "paid limit is the literal 100")
		s.Equal("user-7", ident.Key)
	})

	s.Run("unsubscribed session checks the registered quota", func() {
		session := &auth.Session{User: &auth.User{ID: "user-8"}}
		svc, err := New(rlconfig.NewRegistry(),
			&fakeSessions{session: session},
			counter.NewMemory(),
			WithSubscriptions(&fakeSubscriptions{}),
		)
		s.Require().NoError(err)

		result, _ := svc.Check(s.ctx, newChatRequest())
		s.True(result.Allowed)
		s.Equal(models.RoleRegistered, result.Role)
		s.Equal(8999, result.Remaining)
	})
}

func (s *CheckerSuite) TestLimiterCache() {
	s.Run("limiter snapshots config at first use", func() {
		registry := rlconfig.NewRegistry()
		svc, err := New(registry, nil, counter.NewMemory())
		s.Require().NoError(err)

		result, err := svc.CheckQuota(s.ctx, models.RoleAnonymous, "ip-1")
		s.Require().NoError(err)
		s.Equal(5, result.Limit)

		// Re-registering after the limiter exists does not disturb it.
		s.Require().NoError(registry.Register(models.RoleAnonymous, models.Config{
			Limit: 50, Window: time.Hour, DisplayName: "Anonymous",
		}))

		result, err = svc.CheckQuota(s.ctx, models.RoleAnonymous, "ip-1")
		s.Require().NoError(err)
		s.Equal(5, result.Limit)
	})
}

func TestRetryAfter(t *testing.T) {
	if got := retryAfter(time.Now().Add(90 * time.Second)); got < 89 || got > 91 {
		t.Fatalf("retryAfter ≈ 90 expected, got %d", got)
	}
	if got := retryAfter(time.Now().Add(-time.Minute)); got != 0 {
		t.Fatalf("past reset should floor at 0, got %d", got)
	}
}
