package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkv/capital-works/works"
	"github.com/rkv/capital-works/works/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// bcrypt.MinCost keeps the tests fast.
const testCost = 4

func newTestAuthenticator(t *testing.T) (*Authenticator, *store.Memory) {
	t.Helper()
	users := store.NewMemory()

	hash, err := HashPassword("secret123", testCost)
	require.NoError(t, err)
	require.NoError(t, users.CreateUser(context.Background(), works.User{
		ID: "u1", Username: "clerk", PasswordHash: hash, Role: works.RoleUser, IsActive: true,
	}))
	require.NoError(t, users.CreateUser(context.Background(), works.User{
		ID: "u2", Username: "retired", PasswordHash: hash, Role: works.RoleUser, IsActive: false,
	}))

	a := NewAuthenticator(users, NewTokenIssuer("test-secret", "capital-works", time.Hour), NewRateLimiter(3, 10, time.Minute))
	return a, users
}

// =============================================================================
// PASSWORDS
// =============================================================================

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123", testCost)
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "secret123"))
	assert.False(t, CheckPassword(hash, "secret124"))
	assert.False(t, CheckPassword("not-a-hash", "secret123"))

	_, err = HashPassword("short", testCost)
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

// =============================================================================
// TOKENS
// =============================================================================

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := NewTokenIssuer("test-secret", "capital-works", time.Hour)

	token, expires, err := ti.Issue("clerk", works.RoleAdmin, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := ti.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{Username: "clerk", Role: works.RoleAdmin}, id)
	assert.True(t, id.IsAdmin())
}

func TestTokenIssuer_Rejects(t *testing.T) {
	ti := NewTokenIssuer("test-secret", "capital-works", time.Hour)

	expired, _, err := ti.Issue("clerk", works.RoleUser, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	otherKey, _, err := NewTokenIssuer("other-secret", "capital-works", time.Hour).Issue("clerk", works.RoleUser, time.Now())
	require.NoError(t, err)

	badRole, _, err := ti.Issue("clerk", works.Role("root"), time.Now())
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		Role: works.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "clerk",
			Issuer:    "capital-works",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"wrong key": otherKey,
		"bad role":  badRole,
		"alg none":  unsigned,
		"garbage":   "not.a.token",
		"empty":     "",
	} {
		_, err := ti.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

// =============================================================================
// RATE LIMITER
// =============================================================================

func TestRateLimiter_UsernameBucket(t *testing.T) {
	// GIVEN: A limit of 2 attempts per username in a 1 minute window
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	r := NewRateLimiter(2, 100, time.Minute)
	r.now = func() time.Time { return now }

	// WHEN: Three attempts in quick succession, mixing case
	require.NoError(t, r.Allow("clerk", "10.0.0.1"))
	require.NoError(t, r.Allow("CLERK", "10.0.0.2"))
	err := r.Allow("Clerk", "10.0.0.3")

	// THEN: The third is rejected on the username bucket
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "username", rle.Reason)
	assert.ErrorIs(t, err, ErrRateLimited)

	// AND: Once the window passes, attempts are admitted again
	now = now.Add(time.Minute + time.Second)
	assert.NoError(t, r.Allow("clerk", "10.0.0.1"))
}

func TestRateLimiter_IPBucket(t *testing.T) {
	r := NewRateLimiter(100, 2, time.Minute)

	require.NoError(t, r.Allow("a", "10.0.0.1"))
	require.NoError(t, r.Allow("b", "10.0.0.1"))

	var rle *RateLimitError
	require.True(t, errors.As(r.Allow("c", "10.0.0.1"), &rle))
	assert.Equal(t, "ip", rle.Reason)

	assert.NoError(t, r.Allow("c", "10.0.0.2"))
}

func TestRateLimiter_Reset(t *testing.T) {
	r := NewRateLimiter(1, 100, time.Minute)

	require.NoError(t, r.Allow("clerk", "ip"))
	require.Error(t, r.Allow("clerk", "ip"))

	r.Reset("Clerk")
	assert.NoError(t, r.Allow("clerk", "ip"))
}

func TestRateLimiter_ForgetsExpiredBuckets(t *testing.T) {
	// GIVEN: Attempts for many distinct usernames and IPs
	now := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	r := NewRateLimiter(5, 5, time.Minute)
	r.now = func() time.Time { return now }
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Allow(fmt.Sprintf("user-%d", i), fmt.Sprintf("10.0.0.%d", i)))
	}
	users, ips := r.Size()
	require.Equal(t, 50, users)
	require.Equal(t, 50, ips)

	// WHEN: One more attempt after the window has passed
	now = now.Add(2 * time.Minute)
	require.NoError(t, r.Allow("late", "10.0.1.1"))

	// THEN: Only the live buckets remain
	users, ips = r.Size()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, ips)
}

func TestRateLimiter_RefusalDoesNotKeepEmptyBucket(t *testing.T) {
	// GIVEN: A full IP bucket
	r := NewRateLimiter(5, 1, time.Minute)
	require.NoError(t, r.Allow("a", "10.0.0.1"))

	// WHEN: New usernames are refused on the IP
	for i := 0; i < 10; i++ {
		require.Error(t, r.Allow(fmt.Sprintf("spray-%d", i), "10.0.0.1"))
	}

	// THEN: The refused usernames are not tracked
	users, ips := r.Size()
	assert.Equal(t, 1, users)
	assert.Equal(t, 1, ips)
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLogin_Success(t *testing.T) {
	// GIVEN: An active user
	ctx := context.Background()
	a, users := newTestAuthenticator(t)

	// WHEN: Logging in with the right password
	session, _, err := a.Login(ctx, "clerk", "secret123", "10.0.0.1")
	require.NoError(t, err)

	// THEN: A token for the user is issued and last_login_at is stamped
	assert.Equal(t, "clerk", session.Username)
	assert.Equal(t, works.RoleUser, session.Role)

	id, err := a.Tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "clerk", id.Username)

	u, err := users.GetUser(ctx, "clerk")
	require.NoError(t, err)
	assert.NotNil(t, u.LastLoginAt)
}

func TestLogin_Failures(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	_, _, err := a.Login(ctx, "clerk", "wrong-password", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = a.Login(ctx, "nobody", "secret123", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, u, err := a.Login(ctx, "retired", "secret123", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInactiveUser)
	assert.Equal(t, "retired", u.Username)
}

func TestLogin_SuccessResetsUsernameBucket(t *testing.T) {
	// GIVEN: Two failed attempts against a limit of 3
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)
	for i := 0; i < 2; i++ {
		_, _, err := a.Login(ctx, "clerk", "wrong-password", "10.0.0.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// WHEN: A successful login
	_, _, err := a.Login(ctx, "clerk", "secret123", "10.0.0.1")
	require.NoError(t, err)

	// THEN: Three more attempts are admitted before the limit applies again
	for i := 0; i < 3; i++ {
		_, _, err := a.Login(ctx, "clerk", "wrong-password", "10.0.0.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, err = a.Login(ctx, "clerk", "secret123", "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimited)
}
