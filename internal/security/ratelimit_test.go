// internal/security/ratelimit_test.go
package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWindowStoreEnforcesMax(t *testing.T) {
	s := NewMemoryWindowStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.Take(ctx, "key", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := s.Take(ctx, "key", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request should be refused")
}

func TestMemoryWindowStoreDoesNotCountRefusedRequests(t *testing.T) {
	s := NewMemoryWindowStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Take(ctx, "key", time.Minute, 2)
	}

	// Only two requests were admitted; the refused ones must not have
	// extended the count, so the stored counter stays at max.
	s.mtx.Lock()
	count := s.entries["key"].count
	s.mtx.Unlock()
	assert.Equal(t, 2, count)
}

func TestMemoryWindowStoreLazyReset(t *testing.T) {
	s := NewMemoryWindowStore()
	ctx := context.Background()

	ok, err := s.Take(ctx, "key", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = s.Take(ctx, "key", time.Minute, 1)
	require.False(t, ok)

	// Force the window into the past; the next call opens a fresh window.
	s.mtx.Lock()
	s.entries["key"].resetAt = time.Now().Add(-time.Second)
	s.mtx.Unlock()

	ok, err = s.Take(ctx, "key", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryWindowStoreIsolatesKeys(t *testing.T) {
	s := NewMemoryWindowStore()
	ctx := context.Background()

	ok, _ := s.Take(ctx, "a", time.Minute, 1)
	require.True(t, ok)
	ok, _ = s.Take(ctx, "a", time.Minute, 1)
	require.False(t, ok)

	ok, _ = s.Take(ctx, "b", time.Minute, 1)
	assert.True(t, ok, "a different key has its own window")
}

func TestMemoryWindowStorePrune(t *testing.T) {
	s := NewMemoryWindowStore()
	ctx := context.Background()

	s.Take(ctx, "stale", time.Minute, 5)
	s.mtx.Lock()
	s.entries["stale"].resetAt = time.Now().Add(-time.Hour)
	s.mtx.Unlock()
	s.Take(ctx, "fresh", time.Minute, 5)

	s.Prune(time.Now())

	s.mtx.Lock()
	defer s.mtx.Unlock()
	assert.NotContains(t, s.entries, "stale")
	assert.Contains(t, s.entries, "fresh")
}

type failingWindowStore struct{}

func (failingWindowStore) Take(context.Context, string, time.Duration, int) (bool, error) {
	return false, errors.New("store down")
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	l := NewLimiter(failingWindowStore{}, Policy{Window: time.Minute, Max: 1})
	assert.True(t, l.Allow(context.Background(), "key"))
}

func TestClientKeyBindsIPAndUserAgent(t *testing.T) {
	base := ClientKey("1.2.3.4", "Mozilla/5.0")
	assert.Len(t, base, 64)
	assert.Equal(t, base, ClientKey("1.2.3.4", "Mozilla/5.0"))
	assert.NotEqual(t, base, ClientKey("1.2.3.5", "Mozilla/5.0"))
	assert.NotEqual(t, base, ClientKey("1.2.3.4", "curl/8.0"))
}

func TestActivationKeyBindsLicenseAndIP(t *testing.T) {
	base := ActivationKey("AAAA-BBBB-CCCC-DDDD", "1.2.3.4")
	assert.Equal(t, base, ActivationKey("AAAA-BBBB-CCCC-DDDD", "1.2.3.4"))
	assert.NotEqual(t, base, ActivationKey("AAAA-BBBB-CCCC-DDDD", "1.2.3.5"))
	assert.NotEqual(t, base, ActivationKey("EEEE-BBBB-CCCC-DDDD", "1.2.3.4"))
}
