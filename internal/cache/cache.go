// Package cache provides a TTL-aware, capacity-bounded LRU cache keyed by a
// query fingerprint, used to front each leaf upstream's client pool.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// EntryType categorizes a cached response for TTL and eviction purposes.
type EntryType int

const (
	Positive EntryType = iota // successful response with answers
	NXDomain                  // non-existent domain (RCODE=3)
	NoData                    // name exists but no data for the query type
	ServFail                  // server failure (RCODE=2)
)

func (t EntryType) String() string {
	switch t {
	case Positive:
		return "positive"
	case NXDomain:
		return "nxdomain"
	case NoData:
		return "nodata"
	case ServFail:
		return "servfail"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// Policy configures TTL caps and negative-caching behavior. The zero value
// is not usable; start from DefaultPolicy.
type Policy struct {
	MaxTTL            time.Duration // ceiling for positive entries
	NegativeEnabled   bool          // whether NXDOMAIN/NODATA/SERVFAIL are cached at all
	NegativeFloor     time.Duration // TTL used when a negative response carries no SOA MINIMUM
	ServFailTTL       time.Duration // TTL for cached SERVFAIL entries
	MaxNegativeTTL    time.Duration // ceiling for negative entries (including SERVFAIL)
}

// DefaultPolicy mirrors conventional resolver defaults: a day for positive
// answers, five minutes for negative answers absent an SOA MINIMUM, thirty
// seconds for SERVFAIL, capped at an hour.
func DefaultPolicy() Policy {
	return Policy{
		MaxTTL:          24 * time.Hour,
		NegativeEnabled: true,
		NegativeFloor:   5 * time.Minute,
		ServFailTTL:     30 * time.Second,
		MaxNegativeTTL:  1 * time.Hour,
	}
}

func (p Policy) capTTL(ttl time.Duration, entryType EntryType) time.Duration {
	switch entryType {
	case ServFail, NXDomain, NoData:
		if !p.NegativeEnabled {
			return 0
		}
		if ttl > p.MaxNegativeTTL {
			return p.MaxNegativeTTL
		}
	default: // Positive
		if ttl > p.MaxTTL {
			return p.MaxTTL
		}
	}
	return ttl
}

type entry[V any] struct {
	value     V
	cachedAt  time.Time
	expiresAt time.Time
	entryType EntryType
	elem      *list.Element
}

// TTLCache is a thread-safe, TTL-aware LRU cache. K is the fingerprint type
// (comparable); V is the cached payload, typically a wire-format response.
//
// On concurrent misses for the same key, both callers may go to the
// upstream; whichever Set call lands last wins. This cache does not
// coalesce concurrent misses into a single upstream request.
type TTLCache[K comparable, V any] struct {
	mu sync.Mutex

	policy     Policy
	maxEntries int

	lru  *list.List
	data map[K]*entry[V]

	hits, misses, negativeHits int
}

// New creates a cache holding at most maxEntries items, applying policy to
// every Set call. maxEntries <= 0 is treated as 1, matching the teacher's
// refusal to construct an unbounded cache by accident.
func New[K comparable, V any](maxEntries int, policy Policy) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TTLCache[K, V]{
		policy:     policy,
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       map[K]*entry[V]{},
	}
}

// Get returns the cached value for key, whether it was found (and not
// expired), and its entry type. Expired entries are evicted and counted as
// misses.
func (c *TTLCache[K, V]) Get(key K) (V, bool, EntryType) {
	v, _, ok, t := c.getWithAge(key)
	return v, ok, t
}

// getWithAge is Get plus the entry's age since it was cached. Unexported:
// spec §4.2's cache-hit path restamps the cached template's transaction id
// and question section but does not decrement its TTL by elapsed age, so
// the age value has no external consumer — it stays internal bookkeeping
// for Get's hit/miss accounting.
func (c *TTLCache[K, V]) getWithAge(key K) (V, time.Duration, bool, EntryType) {
	var zero V
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[key]
	if e == nil {
		c.misses++
		return zero, 0, false, Positive
	}

	if !e.expiresAt.After(now) {
		c.lru.Remove(e.elem)
		delete(c.data, key)
		c.misses++
		return zero, 0, false, Positive
	}

	age := now.Sub(e.cachedAt)
	c.lru.MoveToBack(e.elem)
	c.hits++
	if e.entryType != Positive {
		c.negativeHits++
	}
	return e.value, age, true, e.entryType
}

// Set stores val under key with the given pre-cap TTL and entry type. A
// non-positive TTL, or a TTL that the policy zeroes out (e.g. negative
// caching disabled), is a no-op rather than an error: callers compute TTLs
// from upstream responses and some of those are legitimately uncacheable.
func (c *TTLCache[K, V]) Set(key K, val V, ttl time.Duration, entryType EntryType) {
	if ttl <= 0 {
		return
	}
	ttl = c.policy.capTTL(ttl, entryType)
	if ttl <= 0 {
		return
	}

	expires := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.data[key]; existing != nil {
		existing.value = val
		existing.cachedAt = time.Now()
		existing.expiresAt = expires
		existing.entryType = entryType
		c.lru.MoveToBack(existing.elem)
		return
	}

	e := &entry[V]{value: val, cachedAt: time.Now(), expiresAt: expires, entryType: entryType}
	e.elem = c.lru.PushBack(key)
	c.data[key] = e

	c.evictOldest()
}

// NegativeFloor returns the configured negative-cache TTL floor, used by
// callers that must pick a TTL for a negative response without an SOA
// MINIMUM field to fall back on.
func (c *TTLCache[K, V]) NegativeFloor() time.Duration {
	return c.policy.NegativeFloor
}

// ServFailTTL returns the configured SERVFAIL cache TTL.
func (c *TTLCache[K, V]) ServFailTTL() time.Duration {
	return c.policy.ServFailTTL
}

// Stats returns (hits, misses, negativeHits) for observability.
func (c *TTLCache[K, V]) Stats() (hits, misses, negativeHits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.negativeHits
}

func (c *TTLCache[K, V]) evictOldest() {
	for len(c.data) > c.maxEntries {
		front := c.lru.Front()
		if front == nil {
			break
		}
		k := front.Value.(K)
		c.lru.Remove(front)
		delete(c.data, k)
	}
}
