package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/memecoin-radar/internal/obs"
)

// Redis is a Store backed by a shared Redis instance, grounded on the pack's
// go-redis dependency (sawpanic-cryptorun and franky69420-crypto-oracle both
// lean on a go-redis client for this same "remote cache" concern in sibling
// momentum-scanner services). Values round-trip through JSON, so callers
// that stash a concrete struct and later type-assert on the exact type
// (rather than re-unmarshaling) should prefer Local; Redis is intended for
// the byte/number-oriented hot paths (snapshot blobs decoded again by the
// reader, counters).
type Redis struct {
	client  *redis.Client
	mu      sync.Mutex
	hitEwma float64
	seen    bool
}

// NewRedis connects to addr (host:port) and verifies reachability with PING.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

// Get fetches and JSON-decodes the value stored under key. A miss or decode
// failure both report ok=false — cache failures degrade silently rather than
// propagating, per the error-handling design.
func (r *Redis) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := r.client.Get(ctx, key).Bytes()
	r.recordHit(err == nil)
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Set JSON-encodes value and stores it under key with the given TTL.
func (r *Redis) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		obs.Component("cache.redis").Warn().Err(err).Str("key", key).Msg("failed to encode value for redis")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		obs.Component("cache.redis").Warn().Err(err).Str("key", key).Msg("failed to write through to redis")
	}
}

// Increment uses Redis's native INCRBY, then refreshes the key's TTL.
func (r *Redis) Increment(key string, delta int64, ttl time.Duration) int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		obs.Component("cache.redis").Warn().Err(err).Str("key", key).Msg("failed to increment redis key")
		return delta
	}
	r.client.Expire(ctx, key, ttl)
	return v
}

// GetStats returns the current hit-ratio moving average.
func (r *Redis) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{HitRatio: r.hitEwma}
}

func (r *Redis) recordHit(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obsVal := 0.0
	if hit {
		obsVal = 1.0
	}
	if !r.seen {
		r.hitEwma = obsVal
		r.seen = true
		return
	}
	r.hitEwma = (1-ewmaAlpha)*r.hitEwma + ewmaAlpha*obsVal
}
