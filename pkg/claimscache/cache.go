// Package claimscache provides a process-local, time-bounded cache for
// decoded access-token claims. Entries are keyed by a deterministic token
// fingerprint so raw tokens are never held in memory longer than a request.
package claimscache

import (
	"crypto/sha256"
	"encoding/base64"
	"hash/fnv"
	"sync"
	"time"
)

// shardCount is fixed; the cache is read-heavy and shared by every
// authenticated request, so lookups must never funnel through one lock.
const shardCount = 64

// Fingerprint returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Cache keys and revocation records use this instead of
// the raw token value.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
}

// Cache is a sharded TTL cache. The zero value is not usable; construct with
// New. All methods are safe for concurrent use.
type Cache[V any] struct {
	shards [shardCount]*shard[V]
	maxTTL time.Duration
	now    func() time.Time
}

// New returns a Cache whose entries live for at most maxTTL, even when the
// caller supplies a later expiry. maxTTL <= 0 disables the policy ceiling so
// entries expire exactly at their supplied deadline.
func New[V any](maxTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		maxTTL: maxTTL,
		now:    time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard[V]{entries: make(map[string]entry[V])}
	}
	return c
}

func (c *Cache[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns the cached value for key, or ok=false on a miss. An entry
// whose deadline has passed is treated as a miss and evicted in place.
func (c *Cache[V]) Get(key string) (V, bool) {
	s := c.shardFor(key)

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if !c.now().Before(e.expiresAt) {
		// Lazy eviction. Re-check under the write lock since another
		// goroutine may have replaced the entry meanwhile.
		s.mu.Lock()
		if cur, still := s.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()

		var zero V
		return zero, false
	}

	return e.value, true
}

// Put stores value until min(expiresAt, now+maxTTL), overwriting any prior
// entry for the same key. Values already past expiry are not stored.
func (c *Cache[V]) Put(key string, value V, expiresAt time.Time) {
	deadline := expiresAt
	if c.maxTTL > 0 {
		if capped := c.now().Add(c.maxTTL); capped.Before(deadline) {
			deadline = capped
		}
	}
	if !c.now().Before(deadline) {
		return
	}

	s := c.shardFor(key)
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, expiresAt: deadline}
	s.mu.Unlock()
}

// Invalidate removes key immediately. Used by token revocation; a locally
// evicted token must never be served from cache again.
func (c *Cache[V]) Invalidate(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Sweep proactively evicts every expired entry and reports how many were
// removed. Intended to be driven by a periodic housekeeping task.
func (c *Cache[V]) Sweep() int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !c.now().Before(e.expiresAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of resident entries, expired or not.
func (c *Cache[V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
