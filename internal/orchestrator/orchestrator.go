// Package orchestrator wires the DataCollector and Sentinel streams into the
// scored, filtered, pinned hotlist and leaderboard views the read API and
// subscribers observe. Its two-independent-consumer-converging-on-shared-state
// shape — one task draining PairUpdates, one draining CEXListingEvents, both
// mutating the same hotlist/pin state under a single-writer discipline —
// mirrors wiring independent upstream consumers into one shared alert
// manager and broadcast hub.
package orchestrator

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rawblock/memecoin-radar/internal/alerting"
	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/config"
	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/internal/ratelimit"
	"github.com/rawblock/memecoin-radar/internal/scorer"
	"github.com/rawblock/memecoin-radar/internal/security"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

const (
	pinWindow            = 30 * time.Minute
	batchFlushEvery      = time.Second
	pinCleanupEvery      = time.Minute
	healthLogEvery       = 5 * time.Minute
	healthBroadcastEvery = 30 * time.Second
)

// BaselineLookup resolves a token's current rolling baseline, supplied by
// the DataCollector.
type BaselineLookup func(tokenKey string) (models.Baseline, bool)

// Orchestrator runs the pipeline: score incoming PairUpdates, filter to the
// eligible set, merge in pinned tokens, publish the hotlist and leaderboards,
// evaluate alert conditions, and track CEX-listing pins.
type Orchestrator struct {
	configStore *config.Store
	auditor     *security.Auditor
	alerts      *alerting.Manager
	cache       cache.Store
	baseline    BaselineLookup

	pairUpdates   <-chan models.PairUpdate
	listingEvents <-chan models.CEXListingEvent

	hub *Hub

	mu             sync.RWMutex
	tokenSummaries map[string]models.TokenSummary // latest known summary per token key

	hotlistMu    sync.RWMutex
	hotlistAll   []models.TokenSummary
	hotlistTop   []models.TokenSummary
	lastEligible []models.TokenSummary // most recent eligible set, pre-pin-merge

	leaderboard atomic.Pointer[models.Leaderboard]

	pins *pinStore

	healthMu     sync.RWMutex
	healthChecks map[string]ComponentCheck
	rateLimiter  *ratelimit.Limiter

	running atomic.Bool
}

// New constructs an Orchestrator. pairUpdates and listingEvents are typically
// collector.Updates() and sentinel.Listings().
func New(
	configStore *config.Store,
	auditor *security.Auditor,
	alerts *alerting.Manager,
	cacheStore cache.Store,
	baseline BaselineLookup,
	pairUpdates <-chan models.PairUpdate,
	listingEvents <-chan models.CEXListingEvent,
) *Orchestrator {
	empty := make(models.Leaderboard, len(models.AllCategories))
	for _, c := range models.AllCategories {
		empty[c] = nil
	}
	o := &Orchestrator{
		configStore:    configStore,
		auditor:        auditor,
		alerts:         alerts,
		cache:          cacheStore,
		baseline:       baseline,
		pairUpdates:    pairUpdates,
		listingEvents:  listingEvents,
		hub:            NewHub(),
		tokenSummaries: make(map[string]models.TokenSummary),
		pins:           newPinStore(),
		healthChecks:   make(map[string]ComponentCheck),
	}
	o.leaderboard.Store(&empty)
	return o
}

// Hub exposes the subscriber fan-out point for the external API layer.
func (o *Orchestrator) Hub() *Hub { return o.hub }

// Run starts the pair-update consumer, the listing consumer and the periodic
// cleanup tasks, blocking until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.running.Store(true)
	defer o.running.Store(false)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); o.consumePairUpdates(ctx) }()
	go func() { defer wg.Done(); o.consumeListings(ctx) }()
	go func() { defer wg.Done(); o.cleanupLoop(ctx) }()
	wg.Wait()
}

func (o *Orchestrator) consumePairUpdates(ctx context.Context) {
	pending := make(map[string]models.PairUpdate)
	flush := time.NewTicker(batchFlushEvery)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-o.pairUpdates:
			if !ok {
				return
			}
			pending[u.Token.Key()] = u
		case <-flush.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = make(map[string]models.PairUpdate)
			o.processBatch(ctx, batch)
		}
	}
}

// processBatch implements the Orchestrator's on-batch pipeline pass:
// dedupe (already done by the caller's map), security analysis, scoring,
// filtering, pin merge, cache update, alert evaluation, fan-out.
func (o *Orchestrator) processBatch(ctx context.Context, batch map[string]models.PairUpdate) {
	cfg := o.configStore.Get()
	nowMs := time.Now().UnixMilli()

	refs := make([]models.TokenRef, 0, len(batch))
	for _, u := range batch {
		refs = append(refs, u.Token)
	}
	reports := o.auditor.AnalyzeBatch(ctx, refs)

	summaries := make([]models.TokenSummary, 0, len(batch))
	for key, u := range batch {
		report, ok := reports[key]
		if !ok {
			continue // missing security report: drop the token for this pass
		}

		bl, _ := o.baseline(key)
		boostActive := o.pins.isActive(key, nowMs)
		signals := scorer.Compute(u, bl, report, boostActive, nowMs)

		summary := models.TokenSummary{
			ChainId:      u.ChainId,
			Token:        u.Token,
			PairAddress:  u.PairAddress,
			PriceUsd:     u.Stats.PriceUsd,
			Buys5:        u.Stats.Buys5,
			Sells5:       u.Stats.Sells5,
			Vol5Usd:      u.Stats.Vol5Usd,
			Vol15Usd:     u.Stats.Vol15Usd,
			LiquidityUsd: u.Stats.LiquidityUsd,
			FdvUsd:       u.Stats.FdvUsd,
			AgeMinutes:   u.AgeMinutes(nowMs),
			Score:        scorer.Score(signals),
			Reasons:      scorer.Reasons(signals),
			Security:     models.SecuritySummary{Ok: report.SecurityOk, Flags: report.Flags},
			Links:        buildLinks(u.ChainId, u.PairAddress),
		}

		if boostActive {
			if pin, ok := o.pins.get(key); ok {
				summary.Reasons = append(summary.Reasons, pin.Reason)
			}
		}

		summaries = append(summaries, summary)
		o.storeTokenSummary(key, summary)
		o.alerts.EvaluateScoreAlert(ctx, summary,
			cfg.Thresholds.ScoreAlert, cfg.Thresholds.Surge15Min, cfg.Thresholds.Imbalance5Min, cfg.Thresholds.MinLiqAlert)
	}

	eligible := filterEligible(summaries, cfg.Thresholds.MinLiqList, cfg.Thresholds.MaxAgeHours)
	o.rebuildHotlist(eligible)
	o.rebuildLeaderboards(eligible)
}

func filterEligible(summaries []models.TokenSummary, minLiqList, maxAgeHours float64) []models.TokenSummary {
	out := make([]models.TokenSummary, 0, len(summaries))
	for _, s := range summaries {
		if scorer.Eligible(s, minLiqList, maxAgeHours) {
			out = append(out, s)
		}
	}
	return out
}

// rebuildHotlist merges the filtered eligible set with every active pin —
// a pin's summary (the one captured when its listing arrived) always
// replaces the eligible-set entry for the same token — sorts by score
// descending, and cache-then-notifies subscribers.
func (o *Orchestrator) rebuildHotlist(eligible []models.TokenSummary) {
	nowMs := time.Now().UnixMilli()

	merged := make(map[string]models.TokenSummary, len(eligible))
	for _, s := range eligible {
		merged[s.Key()] = s
	}
	for _, pin := range o.pins.active(nowMs) {
		merged[pin.Summary.Key()] = pin.Summary
	}

	all := make([]models.TokenSummary, 0, len(merged))
	for _, s := range merged {
		all = append(all, s)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	top := all
	if len(top) > models.MaxLeaderboardSize {
		top = top[:models.MaxLeaderboardSize]
	}

	o.hotlistMu.Lock()
	o.hotlistAll = all
	o.hotlistTop = top
	o.lastEligible = eligible
	o.hotlistMu.Unlock()

	o.cache.Set("hotlist:all", all, cache.TTLLeaderboard)
	o.cache.Set("hotlist:top", top, cache.TTLLeaderboard)

	o.hub.Publish(Envelope{Type: EnvelopeHotlist, Data: top, Timestamp: time.Now().UnixMilli()})
}

func (o *Orchestrator) rebuildLeaderboards(eligible []models.TokenSummary) {
	lb := scorer.BuildLeaderboards(eligible)
	o.leaderboard.Store(&lb)
}

func (o *Orchestrator) storeTokenSummary(key string, summary models.TokenSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tokenSummaries[key] = summary
}

func (o *Orchestrator) lookupTokenSummary(key string) (models.TokenSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.tokenSummaries[key]
	return s, ok
}

func (o *Orchestrator) consumeListings(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.listingEvents:
			if !ok {
				return
			}
			o.processListing(ctx, ev)
		}
	}
}

// IngestListing processes a CEXListingEvent delivered out-of-band (e.g. via
// the POST /webhooks/cex-listing bridge) exactly as if it had arrived on the Sentinel's
// own channel. Safe to call concurrently with Run.
func (o *Orchestrator) IngestListing(ctx context.Context, ev models.CEXListingEvent) {
	o.processListing(ctx, ev)
}

// processListing handles a CEX listing event: find-or-synthesize the
// token's summary, boost its score, pin it, evaluate the listing alert,
// notify subscribers, and trigger an out-of-cycle hotlist refresh.
func (o *Orchestrator) processListing(ctx context.Context, ev models.CEXListingEvent) {
	if ev.Confirmation != "address" || ev.Token.Address == "" {
		// symbol_only confirmation: nothing to pin against a specific pair
		// yet. Still worth a listing alert keyed by symbol so operators see
		// it, but there is no address to key a pin or hotlist entry on.
		o.alerts.EvaluateListingAlert(ctx, ev.Token.Symbol, ev.Exchange, models.TokenSummary{
			ChainId: ev.Token.ChainId,
			Token:   models.TokenRef{ChainId: ev.Token.ChainId, Symbol: ev.Token.Symbol},
			Score:   ev.RadarScore,
		})
		o.hub.Publish(Envelope{Type: EnvelopeListing, Data: ev, Timestamp: time.Now().UnixMilli()})
		return
	}

	summaryKey := string(ev.Token.ChainId) + ":" + ev.Token.Address

	summary, found := o.lookupTokenSummary(summaryKey)
	if !found {
		summary = models.TokenSummary{
			ChainId: ev.Token.ChainId,
			Token:   models.TokenRef{ChainId: ev.Token.ChainId, Address: ev.Token.Address, Symbol: ev.Token.Symbol},
			Score:   ev.RadarScore,
			Links:   buildLinks(ev.Token.ChainId, ""),
			LiquidityUsd: ev.LiquidityUsd,
			Security: models.SecuritySummary{Ok: true},
		}
	}

	summary.Score = math.Min(100, summary.Score+10)
	reason := "CEX listing: " + ev.Exchange
	summary.Reasons = append(summary.Reasons, reason)
	o.storeTokenSummary(summaryKey, summary)

	pin := models.PinnedToken{
		Summary:     summary,
		PinnedUntil: time.Now().Add(pinWindow).UnixMilli(),
		Reason:      reason,
	}
	o.pins.set(summaryKey, pin)

	o.alerts.EvaluateListingAlert(ctx, ev.Token.Address, ev.Exchange, summary)

	o.hub.Publish(Envelope{Type: EnvelopeListing, Data: ev, Timestamp: time.Now().UnixMilli()})

	o.refreshHotlistWithPins()
}

// refreshHotlistWithPins re-publishes the hotlist immediately after a
// listing pin changes, without waiting for the next PairUpdate batch. It
// re-merges pins against the last known eligible set rather than the
// already-pin-merged hotlist, so an expired pin can actually drop off.
func (o *Orchestrator) refreshHotlistWithPins() {
	o.hotlistMu.RLock()
	eligible := append([]models.TokenSummary(nil), o.lastEligible...)
	o.hotlistMu.RUnlock()
	o.rebuildHotlist(eligible)
}

func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	pinTicker := time.NewTicker(pinCleanupEvery)
	healthLogTicker := time.NewTicker(healthLogEvery)
	healthBroadcastTicker := time.NewTicker(healthBroadcastEvery)
	defer pinTicker.Stop()
	defer healthLogTicker.Stop()
	defer healthBroadcastTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pinTicker.C:
			o.pins.prune(time.Now().UnixMilli())
			o.alerts.PurgeStale(time.Now())
			o.refreshHotlistWithPins()
		case <-healthLogTicker.C:
			report := o.Health()
			obs.Component("orchestrator").Info().Str("status", report.Status).Msg("health check consolidated")
		case <-healthBroadcastTicker.C:
			report := o.Health()
			o.hub.Publish(Envelope{Type: EnvelopeHealth, Data: report, Timestamp: time.Now().UnixMilli()})
		}
	}
}

// Hotlist returns the current full (cache-bypassing) hotlist snapshot.
func (o *Orchestrator) Hotlist() []models.TokenSummary {
	o.hotlistMu.RLock()
	defer o.hotlistMu.RUnlock()
	return append([]models.TokenSummary(nil), o.hotlistAll...)
}

// HotlistTop returns the top-50-by-score hotlist view.
func (o *Orchestrator) HotlistTop() []models.TokenSummary {
	o.hotlistMu.RLock()
	defer o.hotlistMu.RUnlock()
	return append([]models.TokenSummary(nil), o.hotlistTop...)
}

// Leaderboards returns the current leaderboard snapshot, safe to read while
// a rebuild is in flight (atomic per-swap, never half-rebuilt).
func (o *Orchestrator) Leaderboards() models.Leaderboard {
	return *o.leaderboard.Load()
}

// Leaderboard returns a single category's ranked list and whether the
// category is recognized.
func (o *Orchestrator) Leaderboard(category models.LeaderboardCategory) ([]models.TokenSummary, bool) {
	lb := *o.leaderboard.Load()
	tokens, ok := lb[category]
	return tokens, ok
}

// Alerts exposes the alert manager for read endpoints (recent alert history).
func (o *Orchestrator) Alerts() *alerting.Manager { return o.alerts }

// Token returns the last known scored summary for a single (chain, address),
// if one has been observed.
func (o *Orchestrator) Token(chain models.ChainId, address string) (models.TokenSummary, bool) {
	return o.lookupTokenSummary(string(chain) + ":" + address)
}

// Config returns the active configuration snapshot for the read API.
// RADAR_ONLY is reported here exactly as loaded; no pipeline stage above
// reads it for control flow.
func (o *Orchestrator) Config() config.Snapshot {
	return o.configStore.Get()
}

func buildLinks(chain models.ChainId, pairAddress string) models.Links {
	if pairAddress == "" {
		return models.Links{}
	}
	slug := dexscreenerSlug(chain)
	url := "https://dexscreener.com/" + slug + "/" + pairAddress
	return models.Links{Dexscreener: url, Chart: url}
}

func dexscreenerSlug(c models.ChainId) string {
	switch c {
	case models.ChainSolana:
		return "solana"
	case models.ChainEthereum:
		return "ethereum"
	case models.ChainBSC:
		return "bsc"
	case models.ChainBase:
		return "base"
	default:
		return string(c)
	}
}
