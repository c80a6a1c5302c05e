// Package alerting implements the alert-dispatch contract: gate evaluation,
// dedup-by-key cooldowns, a per-hour dispatch ceiling, and delivery to an
// external collaborator. Its registered-endpoint, in-memory-history,
// async-dispatch shape generalizes a severity-threshold webhook fan-out to
// the radar's score/listing alert dedup rules.
package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

const (
	scoreCooldown      = 30 * time.Minute
	scoreRiseToReissue = 10.0
	listingCooldown    = 24 * time.Hour
	defaultMaxHistory  = 1000
	hourWindow         = time.Hour
)

// Alert is a single dispatch-worthy event, built from an eligible
// TokenSummary or a CEXListingEvent.
type Alert struct {
	ID       string              `json:"id"`
	Kind     string              `json:"kind"` // "score" | "listing"
	Address  string              `json:"address"`
	ChainId  models.ChainId      `json:"chainId"`
	Exchange string              `json:"exchange,omitempty"`
	Score    float64             `json:"score"`
	Reason   string              `json:"reason"`
	Summary  models.TokenSummary `json:"summary"`
	Ts       time.Time           `json:"ts"`
}

// Dispatcher delivers an Alert to whatever external system notifies humans
// (webhook, message queue, ...). Implementations must be safe for concurrent
// use; Manager calls Dispatch from its own goroutine per alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert Alert) error
}

type scoreRecord struct {
	score float64
	at    time.Time
}

// Manager evaluates the alert gates, applies dedup/cooldown/ceiling policy,
// and hands surviving alerts to a Dispatcher.
type Manager struct {
	mu         sync.Mutex
	dispatcher Dispatcher
	ceiling    int

	history    []Alert
	maxHistory int

	scoreLastAlert   map[string]scoreRecord
	listingLastAlert map[string]time.Time

	hourWindowStart time.Time
	hourCount       int
}

// NewManager constructs a Manager. ceiling is the per-hour dispatch cap;
// pass <= 0 to fall back to the default of 50.
func NewManager(dispatcher Dispatcher, ceiling int) *Manager {
	if ceiling <= 0 {
		ceiling = 50
	}
	return &Manager{
		dispatcher:       dispatcher,
		ceiling:          ceiling,
		maxHistory:       defaultMaxHistory,
		scoreLastAlert:   make(map[string]scoreRecord),
		listingLastAlert: make(map[string]time.Time),
		hourWindowStart:  time.Now(),
	}
}

// EvaluateScoreAlert checks the composite score-alert gate — score, surge,
// imbalance, liquidity and security_ok all must pass — then applies the
// per-address dedup/cooldown policy. Returns true iff an alert was actually
// dispatched.
func (m *Manager) EvaluateScoreAlert(ctx context.Context, t models.TokenSummary, scoreAlert, surge15Min, imbalance5Min, minLiqAlert float64) bool {
	if !t.Security.Ok {
		return false
	}
	if t.Score < scoreAlert {
		return false
	}
	surge := t.Vol15Usd / maxOf(1, 2*t.Vol5Usd)
	if surge < surge15Min {
		return false
	}
	if imbalanceOf(t) < imbalance5Min {
		return false
	}
	if t.LiquidityUsd < minLiqAlert {
		return false
	}
	return m.dispatchScoreAlert(ctx, t)
}

func (m *Manager) dispatchScoreAlert(ctx context.Context, t models.TokenSummary) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.Key()
	if rec, ok := m.scoreLastAlert[key]; ok {
		if time.Since(rec.at) < scoreCooldown && t.Score < rec.score+scoreRiseToReissue {
			return false
		}
	}
	if !m.consumeCeilingLocked(time.Now()) {
		return false
	}

	m.scoreLastAlert[key] = scoreRecord{score: t.Score, at: time.Now()}
	alert := Alert{
		ID:      uuid.NewString(),
		Kind:    "score",
		Address: t.Token.Address,
		ChainId: t.ChainId,
		Score:   t.Score,
		Reason:  "score alert",
		Summary: t,
		Ts:      time.Now(),
	}
	m.recordLocked(alert)
	go m.dispatch(ctx, alert)
	return true
}

// EvaluateListingAlert applies the CEX-listing dedup key (address, exchange)
// with a 24h cooldown, independent of the score-alert cooldown.
func (m *Manager) EvaluateListingAlert(ctx context.Context, address, exchange string, t models.TokenSummary) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := address + "|" + exchange
	if at, ok := m.listingLastAlert[key]; ok && time.Since(at) < listingCooldown {
		return false
	}
	if !m.consumeCeilingLocked(time.Now()) {
		return false
	}

	m.listingLastAlert[key] = time.Now()
	alert := Alert{
		ID:       uuid.NewString(),
		Kind:     "listing",
		Address:  address,
		ChainId:  t.ChainId,
		Exchange: exchange,
		Score:    t.Score,
		Reason:   "CEX listing: " + exchange,
		Summary:  t,
		Ts:       time.Now(),
	}
	m.recordLocked(alert)
	go m.dispatch(ctx, alert)
	return true
}

// consumeCeilingLocked enforces the per-hour dispatch ceiling, rolling the
// tumbling window forward when an hour has elapsed. Caller must hold m.mu.
func (m *Manager) consumeCeilingLocked(now time.Time) bool {
	if now.Sub(m.hourWindowStart) >= hourWindow {
		m.hourWindowStart = now
		m.hourCount = 0
	}
	if m.hourCount >= m.ceiling {
		return false
	}
	m.hourCount++
	return true
}

func (m *Manager) recordLocked(alert Alert) {
	m.history = append(m.history, alert)
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

func (m *Manager) dispatch(ctx context.Context, alert Alert) {
	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Dispatch(ctx, alert); err != nil {
		obs.Component("alerting").Warn().Err(err).
			Str("kind", alert.Kind).Str("address", alert.Address).
			Msg("alert dispatch failed")
	}
}

// RecentAlerts returns up to limit most-recently-recorded alerts, newest
// first. limit <= 0 returns the full history.
func (m *Manager) RecentAlerts(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.history[len(m.history)-1-i]
	}
	return out
}

// PurgeStale drops cooldown entries that can no longer affect future dedup
// decisions, keeping the maps from growing without bound across a long
// process lifetime.
func (m *Manager) PurgeStale(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.scoreLastAlert {
		if now.Sub(rec.at) > scoreCooldown {
			delete(m.scoreLastAlert, k)
		}
	}
	for k, at := range m.listingLastAlert {
		if now.Sub(at) > listingCooldown {
			delete(m.listingLastAlert, k)
		}
	}
}

func imbalanceOf(t models.TokenSummary) float64 {
	total := t.Buys5 + t.Sells5
	if total == 0 {
		return 0
	}
	return float64(t.Buys5-t.Sells5) / float64(total)
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
