/*
Package auth authenticates portal users.

PURPOSE:
  Turns a username + password into a signed bearer token, and a bearer token
  back into an Identity. Owns everything credential-related so the HTTP layer
  only maps errors to status codes.

COMPONENTS:
  password.go:  bcrypt hashing with a configurable cost
  token.go:     HS256 JWTs carrying sub (username) and role
  ratelimit.go: Sliding-window login attempt limiter, per username and per IP
  auth.go:      Authenticator.Login combining the three with a UserStore

LOGIN FLOW:
  1. Rate limiter admits or rejects the attempt (username bucket, then IP)
  2. Look up the user; unknown users and bad passwords are the same error
  3. Inactive users are rejected after the password check
  4. Stamp last_login_at, reset the username bucket, issue a token

SEE ALSO:
  - api/middleware.go: Parses bearer tokens into request context
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rkv/capital-works/works"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInactiveUser is returned when a deactivated user logs in.
	ErrInactiveUser = errors.New("user is inactive")

	// ErrInvalidToken is returned for a missing, malformed, expired or
	// wrongly signed token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRateLimited is the sentinel behind RateLimitError.
	ErrRateLimited = errors.New("too many login attempts")
)

// RateLimitError reports which bucket rejected a login attempt.
type RateLimitError struct {
	Reason string // "username" or "ip"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many login attempts (%s)", e.Reason)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the authenticated caller of a request.
type Identity struct {
	Username string
	Role     works.Role
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == works.RoleAdmin
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	Username  string
	Role      works.Role
	ExpiresAt time.Time
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

// Authenticator verifies credentials against a UserStore.
type Authenticator struct {
	Users   works.UserStore
	Tokens  *TokenIssuer
	Limiter *RateLimiter
	Now     func() time.Time
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(users works.UserStore, tokens *TokenIssuer, limiter *RateLimiter) *Authenticator {
	return &Authenticator{
		Users:   users,
		Tokens:  tokens,
		Limiter: limiter,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Login checks username and password and issues a token. The returned user
// is the stored account when it was found, so callers can audit its role even
// on failure.
func (a *Authenticator) Login(ctx context.Context, username, password, ip string) (Session, works.User, error) {
	if a.Limiter != nil {
		if err := a.Limiter.Allow(username, ip); err != nil {
			return Session{}, works.User{}, err
		}
	}

	user, err := a.Users.GetUser(ctx, username)
	if errors.Is(err, works.ErrUserNotFound) {
		return Session{}, works.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, works.User{}, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return Session{}, user, ErrInvalidCredentials
	}
	if !user.IsActive {
		return Session{}, user, ErrInactiveUser
	}

	now := a.Now()
	if err := a.Users.RecordLogin(ctx, user.Username, now); err != nil {
		return Session{}, user, err
	}
	if a.Limiter != nil {
		a.Limiter.Reset(username)
	}

	token, expires, err := a.Tokens.Issue(user.Username, user.Role, now)
	if err != nil {
		return Session{}, user, err
	}

	return Session{
		Token:     token,
		Username:  user.Username,
		Role:      user.Role,
		ExpiresAt: expires,
	}, user, nil
}
