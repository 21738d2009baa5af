// Package ratelimit guards gossipnode's TCP accept path against a single
// source IP flooding a Node with connection attempts. Node.acceptOne checks
// every accepted connection's remote IP against an IPRateLimiter before the
// handshake runs, so a flood never reaches PeerSession state.
//
// The IPRateLimiter maintains one token bucket per source IP and a
// fixed-size LRU cache to bound memory use against an unbounded number of
// distinct attacker IPs. It is safe for concurrent use.
package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultRate is the default allowed connection attempts per second,
	// per source IP, matching the InboundRateLimiter default in SPEC_FULL.md §4.7.
	DefaultRate = 10
	// DefaultBurst is the default token bucket depth per source IP.
	DefaultBurst = 20
	// DefaultMaxIPs is the maximum number of source IPs tracked simultaneously.
	// When the cache is full the least-recently-seen entry is evicted.
	DefaultMaxIPs = 4096
)

// bucket is a token bucket for a single source IP's connection attempts.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// entry is a cached bucket with its IP key.
type entry struct {
	ip  string
	bkt *bucket
}

// IPRateLimiter rate-limits inbound TCP connection attempts on a
// per-source-IP basis using token buckets. An LRU eviction policy keeps
// memory bounded regardless of how many distinct IPs attempt to connect.
type IPRateLimiter struct {
	mu      sync.Mutex
	rate    float64 // connection attempts allowed per second
	burst   float64 // maximum token depth
	maxIPs  int
	buckets map[string]*list.Element
	lru     *list.List
}

// New creates a new IPRateLimiter with the given rate, burst, and maximum
// number of tracked source IPs.
func New(rate, burst float64, maxIPs int) *IPRateLimiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if maxIPs <= 0 {
		maxIPs = DefaultMaxIPs
	}
	return &IPRateLimiter{
		rate:    rate,
		burst:   burst,
		maxIPs:  maxIPs,
		buckets: make(map[string]*list.Element, maxIPs),
		lru:     list.New(),
	}
}

// NewDefault creates an IPRateLimiter with the InboundRateLimiter defaults
// gossipnode's control loop uses when Options.RateLimiter is nil: 10/s,
// burst 20, LRU-capped at 4096 tracked IPs.
func NewDefault() *IPRateLimiter {
	return New(DefaultRate, DefaultBurst, DefaultMaxIPs)
}

// Allow reports whether a new TCP connection attempt from ip should be
// accepted, consuming one token from that IP's bucket. A caller that gets
// false must close the connection before the handshake runs — see
// Node.acceptOne.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	elem, exists := l.buckets[ip]
	if exists {
		bkt := elem.Value.(*entry).bkt
		elapsed := now.Sub(bkt.lastFill).Seconds()
		bkt.tokens += elapsed * l.rate
		if bkt.tokens > l.burst {
			bkt.tokens = l.burst
		}
		bkt.lastFill = now
		l.lru.MoveToFront(elem)

		if bkt.tokens < 1 {
			return false
		}
		bkt.tokens--
		return true
	}

	// New source IP: evict the least-recently-seen entry if at capacity.
	if l.lru.Len() >= l.maxIPs {
		oldest := l.lru.Back()
		if oldest != nil {
			l.lru.Remove(oldest)
			delete(l.buckets, oldest.Value.(*entry).ip)
		}
	}

	// Start with burst-1 tokens (one consumed for this connection attempt).
	bkt := &bucket{tokens: l.burst - 1, lastFill: now}
	e := &entry{ip: ip, bkt: bkt}
	elem = l.lru.PushFront(e)
	l.buckets[ip] = elem
	return true
}

// Reset clears all tracked IPs and their buckets. Useful for testing.
func (l *IPRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*list.Element, l.maxIPs)
	l.lru.Init()
}
