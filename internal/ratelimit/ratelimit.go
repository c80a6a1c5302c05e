// Package ratelimit implements a token bucket limiter keyed by an arbitrary
// string, with 429-triggered exponential back-off. internal/httpfetch uses
// one Limiter with DefaultConfigs to pace outbound calls per upstream data
// source (dexscreener, geckoterminal, birdeye, goplus, honeypot, ...); the
// admin API (internal/api) uses a second Limiter built with NewWithDefault
// to cap requests per client IP instead. Both are the same bucket and
// refill math — only what the bucket key means and where the configured
// rate comes from differ.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

const cleanupIdleDuration = 10 * time.Minute

// Config is the static shape of a single source's bucket.
type Config struct {
	RatePerSec float64
	Burst      float64
}

// DefaultConfigs holds the documented free-tier limits for every upstream
// this radar polls.
var DefaultConfigs = map[string]Config{
	"dexscreener":   {RatePerSec: 280.0 / 60.0, Burst: 10},
	"geckoterminal": {RatePerSec: 100.0 / 60.0, Burst: 5},
	"birdeye":       {RatePerSec: 0.9, Burst: 3},
	"goplus":        {RatePerSec: 25.0 / 60.0, Burst: 3},
	"honeypot":      {RatePerSec: 1.0, Burst: 2},
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	rate       float64
	lastRefill time.Time
	attempt    int
}

// Limiter holds one token bucket per source.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	defaultCfg Config
}

// New constructs a Limiter seeded with DefaultConfigs; any source first seen
// with no entry there falls back to a conservative 1 req/sec, burst 2.
func New() *Limiter {
	l := &Limiter{buckets: make(map[string]*bucket), defaultCfg: Config{RatePerSec: 1, Burst: 2}}
	go l.cleanupLoop()
	return l
}

// NewWithDefault constructs a Limiter whose unseen sources fall back to
// defaultCfg instead of 1 req/sec, burst 2. A key that names an entry in
// DefaultConfigs still takes that entry. Meant for callers keying buckets by
// something other than a known upstream name, e.g. the admin API's
// per-client-IP limiter, where every "source" is a fresh caller address
// sharing the same configured rate and burst.
func NewWithDefault(defaultCfg Config) *Limiter {
	l := &Limiter{buckets: make(map[string]*bucket), defaultCfg: defaultCfg}
	go l.cleanupLoop()
	return l
}

// SourceStatus is a point-in-time view of one source's bucket, surfaced on
// the health endpoint so operators can see which upstreams are throttled.
type SourceStatus struct {
	TokensAvailable float64 `json:"tokensAvailable"`
	Burst           float64 `json:"burst"`
	RatePerSec      float64 `json:"ratePerSec"`
	ConsecutiveHits int     `json:"consecutive429s"`
}

// Snapshot returns the current status of every source bucket seen so far.
func (l *Limiter) Snapshot() map[string]SourceStatus {
	l.mu.Lock()
	sources := make([]string, 0, len(l.buckets))
	bs := make([]*bucket, 0, len(l.buckets))
	for source, b := range l.buckets {
		sources = append(sources, source)
		bs = append(bs, b)
	}
	l.mu.Unlock()

	out := make(map[string]SourceStatus, len(sources))
	for i, source := range sources {
		b := bs[i]
		b.mu.Lock()
		out[source] = SourceStatus{
			TokensAvailable: b.tokens,
			Burst:           b.burst,
			RatePerSec:      b.rate,
			ConsecutiveHits: b.attempt,
		}
		b.mu.Unlock()
	}
	return out
}

func (l *Limiter) bucketFor(source string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[source]
	if !ok {
		cfg, known := DefaultConfigs[source]
		if !known {
			cfg = l.defaultCfg
		}
		b = &bucket{tokens: cfg.Burst, burst: cfg.Burst, rate: cfg.RatePerSec, lastRefill: time.Now()}
		l.buckets[source] = b
	}
	return b
}

// Allow attempts to consume one token for source, refilling based on elapsed
// wall-clock time since the last refill. It never blocks.
func (l *Limiter) Allow(source string) bool {
	b := l.bucketFor(source)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		b.attempt = 0
		return true
	}
	return false
}

// AllowRetry behaves like Allow but additionally reports how long the caller
// should wait before its next token would be available, for surfacing on a
// Retry-After response header. The returned duration is only meaningful when
// allowed is false.
func (l *Limiter) AllowRetry(source string) (allowed bool, retryAfter time.Duration) {
	b := l.bucketFor(source)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		b.attempt = 0
		return true, 0
	}
	if b.rate <= 0 {
		return false, 0
	}
	return false, time.Duration((1.0-b.tokens)/b.rate*1000) * time.Millisecond
}

// Observe429 records an upstream rate-limit rejection for source. If
// retryAfter is non-zero, the bucket is frozen until that duration has
// elapsed; otherwise a jittered exponential back-off (capped at 30s) is
// applied, escalating with each consecutive 429 until a successful Allow
// resets the attempt counter.
func (l *Limiter) Observe429(source string, retryAfter time.Duration) {
	b := l.bucketFor(source)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = 0
	var delay time.Duration
	if retryAfter > 0 {
		delay = retryAfter
	} else {
		backoff := time.Duration(1<<uint(minInt(b.attempt, 5))) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
		delay = backoff + jitter
		b.attempt++
	}
	b.lastRefill = time.Now().Add(delay)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		l.mu.Lock()
		for source, b := range l.buckets {
			b.mu.Lock()
			idle := b.lastRefill.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(l.buckets, source)
			}
		}
		l.mu.Unlock()
	}
}
