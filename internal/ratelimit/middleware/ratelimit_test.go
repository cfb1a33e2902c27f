package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quotagate/internal/ratelimit/identity"
	"quotagate/internal/ratelimit/models"
)

// fakeChecker returns a canned decision.
type fakeChecker struct {
	result *models.Result
	ident  *identity.Identity
	calls  int
}

func (f *fakeChecker) Check(_ context.Context, _ *http.Request) (*models.Result, *identity.Identity) {
	f.calls++
	return f.result, f.ident
}

type MiddlewareSuite struct {
	suite.Suite
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) serve(m *Middleware) *httptest.ResponseRecorder {
	handlerHit := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerHit = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	m.RateLimit(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))
	s.Equal(rec.Code == http.StatusOK, handlerHit)
	return rec
}

func (s *MiddlewareSuite) TestRateLimit() {
	s.Run("allowed request passes with budget headers", func() {
		resetAt := time.Unix(1700000000, 0)
		checker := &fakeChecker{
			result: &models.Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: resetAt},
			ident:  &identity.Identity{},
		}

		rec := s.serve(New(checker, nil))

		s.Equal(http.StatusOK, rec.Code)
		s.Equal("5", rec.Header().Get("X-RateLimit-Limit"))
		s.Equal("4", rec.Header().Get("X-RateLimit-Remaining"))
		s.Equal("1700000000", rec.Header().Get("X-RateLimit-Reset"))
		s.Empty(rec.Header().Get("Retry-After"))
	})

	s.Run("rejected request gets 429 with retry hint", func() {
		checker := &fakeChecker{
			result: &models.Result{
				Allowed:    false,
				Limit:      5,
				Remaining:  0,
				ResetAt:    time.Unix(1700000000, 0),
				RetryAfter: 3600,
				Error:      "Rate limit exceeded. Anonymous users are limited to 5 requests per day.",
			},
			ident: &identity.Identity{},
		}

		rec := s.serve(New(checker, nil))

		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal("3600", rec.Header().Get("Retry-After"))
		s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))
		s.Equal("application/json", rec.Header().Get("Content-Type"))

		var body models.RateLimitExceededResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("rate_limit_exceeded", body.Error)
		s.Contains(body.Message, "Anonymous")
		s.Equal(3600, body.RetryAfter)
	})

	s.Run("fresh guest id is persisted as a cookie", func() {
		checker := &fakeChecker{
			result: &models.Result{Allowed: true, Limit: 5, Remaining: 4},
			ident:  &identity.Identity{GuestID: "guest-42", GuestIssued: true},
		}

		rec := s.serve(New(checker, nil, WithSecureCookies(true)))

		cookies := rec.Result().Cookies()
		s.Require().Len(cookies, 1)
		cookie := cookies[0]
		s.Equal(identity.GuestCookieName, cookie.Name)
		s.Equal("guest-42", cookie.Value)
		s.Equal("/", cookie.Path)
		s.Equal(int(identity.GuestCookieMaxAge.Seconds()), cookie.MaxAge)
		s.True(cookie.HttpOnly)
		s.True(cookie.Secure)
		s.Equal(http.SameSiteLaxMode, cookie.SameSite)
	})

	s.Run("known guest does not get a new cookie", func() {
		checker := &fakeChecker{
			result: &models.Result{Allowed: true, Limit: 5, Remaining: 4},
			ident:  &identity.Identity{GuestID: "guest-42", GuestIssued: false},
		}

		rec := s.serve(New(checker, nil))
		s.Empty(rec.Result().Cookies())
	})

	s.Run("disabled mode skips the checker entirely", func() {
		checker := &fakeChecker{}

		rec := s.serve(New(checker, nil, WithDisabled(true)))

		s.Equal(http.StatusOK, rec.Code)
		s.Zero(checker.calls)
		s.Empty(rec.Header().Get("X-RateLimit-Limit"))
	})
}
