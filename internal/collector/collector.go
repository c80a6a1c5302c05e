// Package collector implements the DataCollector: per-chain discovery,
// batched polling, rolling baselines and change-detected emission of
// PairUpdate events. Its task-per-chain, ticker-driven structure is a ticking
// loop that caps per-cycle work, builds a typed payload, and hands it to a
// channel send, generalized from one upstream to N chains times N discovery
// keywords times a batched pair refresh.
package collector

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/httpfetch"
	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

const (
	pollBatchSize         = 10
	interBatchSleep       = 200 * time.Millisecond
	discoveryCandidateCap = 20
	maxPairAge            = 96 * time.Hour // matches the Scorer's ageFactor decay floor
	emitPriceThreshold    = 0.05
	emitVolThreshold      = 0.05
	emitLiqThreshold      = 0.05
	emitHeartbeat         = 5 * time.Minute
	cooldownMinMinutes    = 2
	cooldownMaxMinutes    = 5
)

// ChainConfig is the per-chain discovery configuration.
type ChainConfig struct {
	Chain    models.ChainId
	Keywords []string // e.g. sol: {"trending", "SOL", "USDC", "USDT"}
}

// DefaultChainConfigs seeds discovery keywords per chain.
var DefaultChainConfigs = []ChainConfig{
	{Chain: models.ChainSolana, Keywords: []string{"trending", "SOL", "USDC", "USDT"}},
	{Chain: models.ChainEthereum, Keywords: []string{"trending", "WETH", "USDC"}},
	{Chain: models.ChainBSC, Keywords: []string{"trending", "WBNB", "USDT"}},
	{Chain: models.ChainBase, Keywords: []string{"trending", "WETH", "USDC"}},
}

// HealthCounters is a read-only snapshot of the collector's operating
// statistics, surfaced on the health API.
type HealthCounters struct {
	QueueSizes    map[models.ChainId]int
	DroppedPairs  map[string]int64
	LastTick      map[models.ChainId]time.Time
	CacheHitRatio float64
}

// Collector runs discovery and polling tasks for a fixed set of chains and
// emits PairUpdate events on Updates().
type Collector struct {
	chains []ChainConfig
	source Source
	cache  cache.Store

	minLiqList float64
	refresh    time.Duration

	queues    map[models.ChainId]*discoveryQueue
	baselines *baselineStore
	updates   chan models.PairUpdate

	statsMu  sync.Mutex
	dropped  map[string]int64
	lastTick map[models.ChainId]time.Time
}

// New constructs a Collector. minLiqList/refresh come from the active config
// snapshot at construction time; a running Collector keeps them, so a later
// admin config swap does not change its liquidity filter or poll cadence.
func New(chains []ChainConfig, source Source, cacheStore cache.Store, minLiqList float64, refresh time.Duration) *Collector {
	queues := make(map[models.ChainId]*discoveryQueue, len(chains))
	lastTick := make(map[models.ChainId]time.Time, len(chains))
	for _, c := range chains {
		queues[c.Chain] = newDiscoveryQueue()
		lastTick[c.Chain] = time.Time{}
	}
	return &Collector{
		chains:     chains,
		source:     source,
		cache:      cacheStore,
		minLiqList: minLiqList,
		refresh:    refresh,
		queues:     queues,
		baselines:  newBaselineStore(),
		updates:    make(chan models.PairUpdate, 256),
		dropped:    make(map[string]int64),
		lastTick:   lastTick,
	}
}

// Updates returns the channel PairUpdate events are published on. The
// channel is never closed by Run; callers should select on ctx.Done()
// alongside reading from it.
func (c *Collector) Updates() <-chan models.PairUpdate {
	return c.updates
}

// Run starts one discovery task and one polling task per configured chain,
// plus a baseline-eviction sweep, blocking until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	for i, cfg := range c.chains {
		cfg := cfg
		jitter := time.Duration(i) * time.Second
		go c.discoveryLoop(ctx, cfg, jitter)
		go c.pollLoop(ctx, cfg)
	}
	c.evictionLoop(ctx)
}

func (c *Collector) discoveryLoop(ctx context.Context, cfg ChainConfig, startJitter time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startJitter):
	}

	logger := obs.Component("collector.discovery").With().Str("chain", string(cfg.Chain)).Logger()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	run := func() {
		q := c.queues[cfg.Chain]
		now := time.Now()
		for _, keyword := range cfg.Keywords {
			candidates, err := c.source.Search(ctx, cfg.Chain, keyword)
			if err != nil {
				logger.Warn().Err(err).Str("keyword", keyword).Msg("discovery search failed")
				if isRateLimited(err) {
					break
				}
				continue
			}
			added := 0
			for _, cand := range candidates {
				if added >= discoveryCandidateCap {
					break
				}
				if cand.LiquidityUsd < c.minLiqList {
					continue
				}
				ageMs := now.UnixMilli() - cand.PairCreatedAt*1000
				if ageMs > maxPairAge.Milliseconds() {
					continue
				}
				q.add(cand.Address, now)
				added++
			}
			time.Sleep(time.Duration(1+rand.Intn(3)) * time.Second)
		}
		q.prune(now, maxPairAge)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (c *Collector) pollLoop(ctx context.Context, cfg ChainConfig) {
	logger := obs.Component("collector.poll").With().Str("chain", string(cfg.Chain)).Logger()
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	poll := func() {
		q := c.queues[cfg.Chain]
		addresses := q.snapshot(time.Now())
		for start := 0; start < len(addresses); start += pollBatchSize {
			end := start + pollBatchSize
			if end > len(addresses) {
				end = len(addresses)
			}
			batch := addresses[start:end]

			rateLimited := false
			for _, addr := range batch {
				update, err := c.source.PairSnapshot(ctx, cfg.Chain, addr)
				if err != nil {
					c.handlePollError(cfg.Chain, addr, err, q, logger)
					if isRateLimited(err) {
						rateLimited = true
						break
					}
					continue
				}
				c.acceptUpdate(update, q)
			}
			c.setLastTick(cfg.Chain, time.Now())
			if rateLimited {
				break
			}
			time.Sleep(interBatchSleep)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func isRateLimited(err error) bool {
	fe, ok := err.(*httpfetch.Error)
	return ok && fe.Kind == httpfetch.KindRateLimited
}

func (c *Collector) handlePollError(chain models.ChainId, addr string, err error, q *discoveryQueue, logger zerolog.Logger) {
	if isNotFound(err) {
		mins := cooldownMinMinutes + rand.Intn(cooldownMaxMinutes-cooldownMinMinutes+1)
		q.cooldownFor(addr, time.Now().Add(time.Duration(mins)*time.Minute))
		c.bumpDropped("404_cooldown")
		return
	}
	if isRateLimited(err) {
		c.bumpDropped("rate_limited")
		return
	}
	logger.Warn().Err(err).Str("address", addr).Msg("pair poll failed")
	c.bumpDropped("poll_error")
}

func isNotFound(err error) bool {
	fe, ok := err.(*httpfetch.Error)
	return ok && fe.Kind == httpfetch.KindHTTP4xx && fe.Status == 404
}

func (c *Collector) bumpDropped(reason string) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.dropped[reason]++
}

func (c *Collector) setLastTick(chain models.ChainId, t time.Time) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.lastTick[chain] = t
}

// acceptUpdate validates, updates the baseline, decides whether to emit, and
// records the snapshot time — the single-writer path for all collector
// mutable state.
func (c *Collector) acceptUpdate(update models.PairUpdate, q *discoveryQueue) {
	if !update.Valid() {
		c.bumpDropped("invalid")
		return
	}
	if update.Stats.LiquidityUsd < c.minLiqList {
		c.bumpDropped("below_min_liquidity")
		return
	}

	key := update.Token.Key()
	now := time.Now()
	c.baselines.update(key, update.Stats.PriceUsd, update.Stats.Vol15Usd, now)
	q.markSeen(update.PairAddress, now)

	if c.shouldEmit(update) {
		select {
		case c.updates <- update:
		default:
			// Consumer is lagging; drop the oldest queued update, whichever
			// pair it belongs to, to make room for this one. Queued updates
			// are not merged per pair.
			c.drainOne()
			c.updates <- update
		}
		c.cache.Set(lastEmitKey(update.ChainId, update.PairAddress), update, cache.TTLLastEmit)
	}
}

func (c *Collector) drainOne() {
	select {
	case <-c.updates:
	default:
	}
}

func lastEmitKey(chain models.ChainId, pair string) string {
	return fmt.Sprintf("last_emit:%s:%s", chain, pair)
}

func (c *Collector) shouldEmit(update models.PairUpdate) bool {
	key := lastEmitKey(update.ChainId, update.PairAddress)
	v, ok := c.cache.Get(key)
	if !ok {
		return true
	}
	prev, ok := v.(models.PairUpdate)
	if !ok {
		return true
	}

	if relativeDelta(update.Stats.PriceUsd, prev.Stats.PriceUsd) > emitPriceThreshold {
		return true
	}
	if relativeDelta(update.Stats.Vol5Usd, prev.Stats.Vol5Usd) > emitVolThreshold {
		return true
	}
	if relativeDelta(update.Stats.LiquidityUsd, prev.Stats.LiquidityUsd) > emitLiqThreshold {
		return true
	}
	if time.Duration(update.Ts-prev.Ts)*time.Millisecond > emitHeartbeat {
		return true
	}
	return false
}

func relativeDelta(cur, prev float64) float64 {
	if prev == 0 {
		if cur == 0 {
			return 0
		}
		return 1
	}
	return math.Abs(cur-prev) / math.Abs(prev)
}

func (c *Collector) evictionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.baselines.evictStale(time.Now(), maxPairAge)
		}
	}
}

// Baseline returns the current rolling baseline for a token, if one has been
// observed yet.
func (c *Collector) Baseline(tokenKey string) (models.Baseline, bool) {
	return c.baselines.get(tokenKey)
}

// Health returns a snapshot of the collector's operating counters.
func (c *Collector) Health() HealthCounters {
	sizes := make(map[models.ChainId]int, len(c.queues))
	for chain, q := range c.queues {
		sizes[chain] = q.size()
	}
	c.statsMu.Lock()
	droppedCopy := make(map[string]int64, len(c.dropped))
	for k, v := range c.dropped {
		droppedCopy[k] = v
	}
	tickCopy := make(map[models.ChainId]time.Time, len(c.lastTick))
	for k, v := range c.lastTick {
		tickCopy[k] = v
	}
	c.statsMu.Unlock()
	return HealthCounters{
		QueueSizes:    sizes,
		DroppedPairs:  droppedCopy,
		LastTick:      tickCopy,
		CacheHitRatio: c.cache.GetStats().HitRatio,
	}
}
