// internal/security/ratelimit.go
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy is one fixed-window rate-limit rule: at most Max requests per key
// within Window. The same mechanism backs several distinct policies.
type Policy struct {
	Window time.Duration
	Max    int
}

// DefaultPolicies mirrors the production limits: downloads are keyed by a
// hashed IP+UA fingerprint, license validation by IP, activation attempts by
// the (licenseKey, IP) pair.
var (
	DefaultDownloadPolicy   = Policy{Window: 15 * time.Minute, Max: 10}
	DefaultLicensePolicy    = Policy{Window: 5 * time.Minute, Max: 50}
	DefaultActivationPolicy = Policy{Window: 15 * time.Minute, Max: 3}
)

// WindowStore tracks request counts per key for one fixed window. Take
// atomically checks-and-increments: it returns false once the count for the
// key has reached max, without incrementing further. Counters reset lazily
// when a call arrives after the window has elapsed.
type WindowStore interface {
	Take(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

// Limiter applies one Policy over a WindowStore. Exhaustion is a normal,
// reportable outcome, not an error; a failing store fails open so a limiter
// outage can never take down the download path.
type Limiter struct {
	store  WindowStore
	policy Policy
	logger *logrus.Entry
}

func NewLimiter(store WindowStore, policy Policy) *Limiter {
	return &Limiter{
		store:  store,
		policy: policy,
		logger: logrus.WithField("component", "ratelimiter"),
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) bool {
	ok, err := l.store.Take(ctx, key, l.policy.Window, l.policy.Max)
	if err != nil {
		l.logger.WithError(err).Warn("rate limit store unavailable, failing open")
		return true
	}
	return ok
}

// ClientKey derives the download rate-limit key from IP and user agent
// together, so rotating one of the two is not enough to escape the window.
func ClientKey(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])
}

// ActivationKey throttles activation attempts per (licenseKey, IP) pair.
func ActivationKey(licenseKey, ip string) string {
	sum := sha256.Sum256([]byte(licenseKey + "|" + ip))
	return hex.EncodeToString(sum[:])
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryWindowStore is the in-process WindowStore. A single mutex makes the
// check-and-increment atomic per request.
type MemoryWindowStore struct {
	mtx     sync.Mutex
	entries map[string]*windowEntry
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{entries: make(map[string]*windowEntry)}
}

func (s *MemoryWindowStore) Take(_ context.Context, key string, window time.Duration, max int) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || now.After(e.resetAt) {
		s.entries[key] = &windowEntry{count: 1, resetAt: now.Add(window)}
		return true, nil
	}
	if e.count >= max {
		return false, nil
	}
	e.count++
	return true, nil
}

// Prune drops windows that elapsed before cutoff. Correctness never depends
// on it; it exists for memory hygiene in long-lived processes.
func (s *MemoryWindowStore) Prune(cutoff time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for key, e := range s.entries {
		if cutoff.After(e.resetAt) {
			delete(s.entries, key)
		}
	}
}
