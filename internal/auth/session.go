// Package auth provides session resolution for inbound requests. The chat
// product's identity provider is an external collaborator; this package only
// validates the bearer token it issues and exposes the minimal session shape
// the rate limiter needs.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// User is the subset of the identity provider's user record consumed here.
type User struct {
	ID string
	// Anonymous marks guest auth records: sessions issued to callers who
	// never signed up. They rate-limit as anonymous regardless of any
	// other state.
	Anonymous bool
}

// Session carries the authenticated caller, if any.
type Session struct {
	User *User
}

// Claims are the access token claims issued by the identity provider.
type Claims struct {
	Anonymous bool `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// TokenSessions resolves sessions from HS256 bearer tokens.
type TokenSessions struct {
	signingKey []byte
}

// NewTokenSessions creates a session provider validating tokens signed with key.
func NewTokenSessions(signingKey string) *TokenSessions {
	return &TokenSessions{signingKey: []byte(signingKey)}
}

// Session resolves the caller's session from the Authorization header.
// An absent header is not an error: it returns (nil, nil) meaning no session.
// A malformed or expired token returns an error; callers degrade that to
// "no session" rather than rejecting the request.
func (t *TokenSessions) Session(ctx context.Context, r *http.Request) (*Session, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, errors.New("authorization header is not a bearer token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return t.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	return &Session{User: &User{ID: claims.Subject, Anonymous: claims.Anonymous}}, nil
}
