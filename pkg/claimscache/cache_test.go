package claimscache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := New[string](5 * time.Minute)
	c.Put("k", "v", time.Now().Add(time.Minute))

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestGetMissesAfterExpiry(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Hour)
	now, clock := newClock(start)
	c.now = clock

	c.Put("k", "v", start.Add(30*time.Second))

	_, ok := c.Get("k")
	require.True(t, ok)

	*now = start.Add(31 * time.Second)
	_, ok = c.Get("k")
	require.False(t, ok, "expired entry must never be served")

	// Lazy eviction removed the entry entirely.
	require.Zero(t, c.Len())
}

func TestMaxTTLCapsEntryLifetime(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Minute)
	now, clock := newClock(start)
	c.now = clock

	// Claims expire in an hour but the cache policy caps at one minute.
	c.Put("k", "v", start.Add(time.Hour))

	*now = start.Add(61 * time.Second)
	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestPutIgnoresAlreadyExpired(t *testing.T) {
	t.Parallel()

	c := New[string](time.Minute)
	c.Put("k", "v", time.Now().Add(-time.Second))

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestInvalidateRemovesEntry(t *testing.T) {
	t.Parallel()

	c := New[string](time.Minute)
	c.Put("k", "v", time.Now().Add(time.Minute))
	c.Invalidate("k")

	_, ok := c.Get("k")
	require.False(t, ok)

	// Invalidating an absent key is a no-op.
	c.Invalidate("k")
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string](time.Hour)
	now, clock := newClock(start)
	c.now = clock

	c.Put("dead", "v", start.Add(time.Second))
	c.Put("alive", "v", start.Add(time.Hour))

	*now = start.Add(2 * time.Second)
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.Len())

	_, ok := c.Get("alive")
	require.True(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New[int](time.Minute)
	deadline := time.Now().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("key-%d", j%17)
				c.Put(key, n, deadline)
				if v, ok := c.Get(key); ok {
					_ = v
				}
				if j%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestFingerprintIsDeterministicAndOpaque(t *testing.T) {
	t.Parallel()

	a := Fingerprint("token-a")
	require.Equal(t, a, Fingerprint("token-a"))
	require.NotEqual(t, a, Fingerprint("token-b"))
	require.NotContains(t, a, "token-a")
	require.Len(t, a, 43) // base64url SHA-256, no padding
}
