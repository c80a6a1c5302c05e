package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

type countingDispatcher struct {
	mu     sync.Mutex
	alerts []Alert
}

func (c *countingDispatcher) Dispatch(ctx context.Context, alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *countingDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func eligibleSummary(address string, score float64) models.TokenSummary {
	return models.TokenSummary{
		ChainId:      models.ChainSolana,
		Token:        models.TokenRef{ChainId: models.ChainSolana, Address: address, Symbol: "PEPE"},
		Score:        score,
		Buys5:        80,
		Sells5:       20,
		Vol5Usd:      10000,
		Vol15Usd:     60000,
		LiquidityUsd: 50000,
		Security:     models.SecuritySummary{Ok: true},
	}
}

func TestEvaluateScoreAlert_DispatchesWhenAllGatesPass(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	ok := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 80), 70, 2.5, 0.4, 20000)
	if !ok {
		t.Fatal("expected alert to be dispatched")
	}
	waitFor(t, func() bool { return d.count() == 1 })
}

func TestEvaluateScoreAlert_FailsGateOnLowScore(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	ok := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 50), 70, 2.5, 0.4, 20000)
	if ok {
		t.Fatal("expected no alert below the score gate")
	}
}

func TestEvaluateScoreAlert_CooldownSuppressesReissue(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 80), 70, 2.5, 0.4, 20000)
	waitFor(t, func() bool { return d.count() == 1 })

	ok := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 82), 70, 2.5, 0.4, 20000)
	if ok {
		t.Fatal("expected cooldown to suppress a re-alert with only a small score rise")
	}
}

func TestEvaluateScoreAlert_ReissuesOnSufficientScoreRise(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 80), 70, 2.5, 0.4, 20000)
	waitFor(t, func() bool { return d.count() == 1 })

	ok := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 91), 70, 2.5, 0.4, 20000)
	if !ok {
		t.Fatal("expected a re-alert once score rose by >= 10")
	}
	waitFor(t, func() bool { return d.count() == 2 })
}

func TestEvaluateListingAlert_DedupsWithinCooldown(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	summary := eligibleSummary("addr1", 60)
	if !m.EvaluateListingAlert(context.Background(), "addr1", "kucoin", summary) {
		t.Fatal("expected first listing alert to dispatch")
	}
	if m.EvaluateListingAlert(context.Background(), "addr1", "kucoin", summary) {
		t.Fatal("expected duplicate listing alert within 24h to be suppressed")
	}
	waitFor(t, func() bool { return d.count() == 1 })
}

func TestEvaluateListingAlert_DifferentExchangeNotDeduped(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	summary := eligibleSummary("addr1", 60)
	m.EvaluateListingAlert(context.Background(), "addr1", "kucoin", summary)
	ok := m.EvaluateListingAlert(context.Background(), "addr1", "bybit", summary)
	if !ok {
		t.Fatal("expected a different exchange to produce a separate listing alert")
	}
	waitFor(t, func() bool { return d.count() == 2 })
}

func TestPerHourCeiling_BlocksExcessAlerts(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 2)

	ok1 := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 80), 70, 2.5, 0.4, 20000)
	ok2 := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr2", 80), 70, 2.5, 0.4, 20000)
	ok3 := m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr3", 80), 70, 2.5, 0.4, 20000)

	if !ok1 || !ok2 {
		t.Fatal("expected the first two alerts within the ceiling to dispatch")
	}
	if ok3 {
		t.Fatal("expected the third alert to be blocked by the per-hour ceiling")
	}
}

func TestRecentAlerts_NewestFirst(t *testing.T) {
	d := &countingDispatcher{}
	m := NewManager(d, 50)

	m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr1", 80), 70, 2.5, 0.4, 20000)
	m.EvaluateScoreAlert(context.Background(), eligibleSummary("addr2", 80), 70, 2.5, 0.4, 20000)

	recent := m.RecentAlerts(10)
	if len(recent) != 2 {
		t.Fatalf("expected 2 alerts in history, got %d", len(recent))
	}
	if recent[0].Address != "addr2" {
		t.Errorf("expected newest-first order, got %+v", recent)
	}
}
