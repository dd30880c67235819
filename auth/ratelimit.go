package auth

import (
	"strings"
	"sync"
	"time"
)

// Default limiter settings.
const (
	DefaultUsernameLimit = 5
	DefaultIPLimit       = 20
	DefaultWindow        = 300 * time.Second
)

// RateLimiter bounds login attempts per username and per client IP over a
// sliding window. Usernames are compared case-insensitively.
type RateLimiter struct {
	usernameLimit int
	ipLimit       int
	window        time.Duration
	now           func() time.Time

	mu         sync.Mutex
	byUsername map[string][]time.Time
	byIP       map[string][]time.Time
	lastSweep  time.Time
}

// NewRateLimiter creates a limiter. Non-positive values take the defaults.
func NewRateLimiter(usernameLimit, ipLimit int, window time.Duration) *RateLimiter {
	if usernameLimit <= 0 {
		usernameLimit = DefaultUsernameLimit
	}
	if ipLimit <= 0 {
		ipLimit = DefaultIPLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{
		usernameLimit: usernameLimit,
		ipLimit:       ipLimit,
		window:        window,
		now:           time.Now,
		byUsername:    make(map[string][]time.Time),
		byIP:          make(map[string][]time.Time),
	}
}

// Allow records an attempt, or returns a *RateLimitError without recording
// it when either bucket is full.
func (r *RateLimiter) Allow(username, ip string) error {
	now := r.now()
	userKey := strings.ToLower(username)

	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep(now, cutoff)

	userBucket := prune(r.byUsername[userKey], cutoff)
	ipBucket := prune(r.byIP[ip], cutoff)

	var err error
	switch {
	case len(userBucket) >= r.usernameLimit:
		err = &RateLimitError{Reason: "username"}
	case len(ipBucket) >= r.ipLimit:
		err = &RateLimitError{Reason: "ip"}
	default:
		userBucket = append(userBucket, now)
		ipBucket = append(ipBucket, now)
	}

	keep(r.byUsername, userKey, userBucket)
	keep(r.byIP, ip, ipBucket)
	return err
}

// Size returns the number of usernames and IPs currently tracked.
func (r *RateLimiter) Size() (usernames, ips int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUsername), len(r.byIP)
}

// sweep drops every expired bucket, at most once per window.
func (r *RateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for _, m := range []map[string][]time.Time{r.byUsername, r.byIP} {
		for key, bucket := range m {
			keep(m, key, prune(bucket, cutoff))
		}
	}
}

// keep stores bucket under key, or forgets key when bucket is empty.
func keep(m map[string][]time.Time, key string, bucket []time.Time) {
	if len(bucket) == 0 {
		delete(m, key)
		return
	}
	m[key] = bucket
}

// Reset clears the username bucket after a successful login.
func (r *RateLimiter) Reset(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUsername, strings.ToLower(username))
}

// prune drops attempts at or before cutoff. Buckets are in time order.
func prune(bucket []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(bucket) && !bucket[i].After(cutoff) {
		i++
	}
	return bucket[i:]
}
