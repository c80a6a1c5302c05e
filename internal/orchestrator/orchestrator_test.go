package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/internal/alerting"
	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/config"
	"github.com/rawblock/memecoin-radar/internal/security"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

type fakeUpstreams struct{}

func (fakeUpstreams) FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (security.ContractRisk, error) {
	return security.ContractRisk{Found: true}, nil
}

func (fakeUpstreams) FetchHoneypot(ctx context.Context, chain models.ChainId, address string) (security.HoneypotResult, error) {
	return security.HoneypotResult{Found: true}, nil
}

func testSnapshot() config.Snapshot {
	return config.Snapshot{
		Thresholds: config.Thresholds{
			MinLiqList:    10000,
			MinLiqAlert:   20000,
			MaxAgeHours:   48,
			ScoreAlert:    70,
			Surge15Min:    2.5,
			Imbalance5Min: 0.4,
		},
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, chan models.PairUpdate, chan models.CEXListingEvent) {
	t.Helper()
	pairUpdates := make(chan models.PairUpdate, 16)
	listings := make(chan models.CEXListingEvent, 16)

	auditor := security.New(fakeUpstreams{}, cache.NewLocal())
	alerts := alerting.NewManager(nil, 50)
	configStore := config.NewStore(testSnapshot())

	baseline := func(key string) (models.Baseline, bool) { return models.Baseline{}, false }

	o := New(configStore, auditor, alerts, cache.NewLocal(), baseline, pairUpdates, listings)
	return o, pairUpdates, listings
}

func strongUpdate(address string) models.PairUpdate {
	return models.PairUpdate{
		ChainId:     models.ChainSolana,
		PairAddress: "pair-" + address,
		Token:       models.TokenRef{ChainId: models.ChainSolana, Address: address, Symbol: "PEPE"},
		Stats: models.PairStats{
			Buys5:         90,
			Sells5:        10,
			Vol5Usd:       10000,
			Vol15Usd:      60000,
			PriceUsd:      1.0,
			LiquidityUsd:  50000,
			PairCreatedAt: time.Now().Add(-time.Hour).Unix(),
		},
		Ts: time.Now().UnixMilli(),
	}
}

func TestProcessBatch_EligibleTokenReachesHotlist(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	batch := map[string]models.PairUpdate{
		"sol:addr1": strongUpdate("addr1"),
	}
	o.processBatch(context.Background(), batch)

	hotlist := o.Hotlist()
	if len(hotlist) != 1 {
		t.Fatalf("expected 1 hotlist entry, got %d", len(hotlist))
	}
	if hotlist[0].Token.Address != "addr1" {
		t.Errorf("unexpected hotlist entry: %+v", hotlist[0])
	}
}

func TestProcessBatch_IneligibleTokenDroppedFromHotlist(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	weak := strongUpdate("addr2")
	weak.Stats.LiquidityUsd = 1000 // below MinLiqList
	batch := map[string]models.PairUpdate{"sol:addr2": weak}
	o.processBatch(context.Background(), batch)

	if len(o.Hotlist()) != 0 {
		t.Fatalf("expected ineligible token to be excluded, got %d entries", len(o.Hotlist()))
	}
}

func TestProcessBatch_DegradedSecurityReportDropsToken(t *testing.T) {
	pairUpdates := make(chan models.PairUpdate, 16)
	listings := make(chan models.CEXListingEvent, 16)

	auditor := security.New(failingUpstreams{}, cache.NewLocal())
	alerts := alerting.NewManager(nil, 50)
	configStore := config.NewStore(testSnapshot())
	baseline := func(key string) (models.Baseline, bool) { return models.Baseline{}, false }

	o := New(configStore, auditor, alerts, cache.NewLocal(), baseline, pairUpdates, listings)

	batch := map[string]models.PairUpdate{"sol:addr3": strongUpdate("addr3")}
	o.processBatch(context.Background(), batch)

	// A failed analysis still yields a Degraded report (security_ok=false),
	// not a missing one, so the token is dropped by eligibility rather than
	// by the "missing report" branch — assert it never reaches the hotlist.
	if len(o.Hotlist()) != 0 {
		t.Fatalf("expected degraded-security token to be excluded, got %d entries", len(o.Hotlist()))
	}
}

type failingUpstreams struct{}

func (failingUpstreams) FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (security.ContractRisk, error) {
	return security.ContractRisk{}, assertError{}
}

func (failingUpstreams) FetchHoneypot(ctx context.Context, chain models.ChainId, address string) (security.HoneypotResult, error) {
	return security.HoneypotResult{}, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "upstream unavailable" }

func TestProcessListing_PinsTokenAndBoostsScore(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	batch := map[string]models.PairUpdate{"sol:addr4": strongUpdate("addr4")}
	o.processBatch(context.Background(), batch)
	before := o.Hotlist()[0].Score

	ev := models.CEXListingEvent{
		Source:       "cex_listing",
		Exchange:     "kucoin",
		Confirmation: "address",
		Token:        models.ListingTokenRef{Symbol: "PEPE", Address: "addr4", ChainId: models.ChainSolana},
		RadarScore:   75,
	}
	o.processListing(context.Background(), ev)

	after := o.Hotlist()
	if len(after) != 1 {
		t.Fatalf("expected exactly 1 hotlist entry after listing pin, got %d", len(after))
	}
	if after[0].Score <= before {
		t.Errorf("expected score boost from listing, before=%v after=%v", before, after[0].Score)
	}
	found := false
	for _, r := range after[0].Reasons {
		if r == "CEX listing: kucoin" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CEX listing reason, got %+v", after[0].Reasons)
	}
}

func TestProcessListing_SymbolOnlyNeverPinsOrCrashes(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	ev := models.CEXListingEvent{
		Source:       "cex_listing",
		Exchange:     "bybit",
		Confirmation: "symbol_only",
		Token:        models.ListingTokenRef{Symbol: "DOGE"},
		RadarScore:   75,
	}
	o.processListing(context.Background(), ev)

	if len(o.Hotlist()) != 0 {
		t.Fatalf("expected no hotlist entry for a symbol-only listing, got %d", len(o.Hotlist()))
	}
}

func TestPinExpiry_DropsOffHotlistAfterWindow(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	key := "sol:addr5"
	o.pins.set(key, models.PinnedToken{
		Summary:     models.TokenSummary{ChainId: models.ChainSolana, Token: models.TokenRef{ChainId: models.ChainSolana, Address: "addr5"}, Score: 50},
		PinnedUntil: time.Now().Add(-time.Minute).UnixMilli(), // already expired
		Reason:      "CEX listing: gate",
	})
	o.refreshHotlistWithPins()

	if len(o.Hotlist()) != 0 {
		t.Fatalf("expected expired pin to be excluded from hotlist, got %d entries", len(o.Hotlist()))
	}
}

type recordingSubscriber struct {
	envelopes []Envelope
}

func (r *recordingSubscriber) Notify(env Envelope) error {
	r.envelopes = append(r.envelopes, env)
	return nil
}

func TestProcessBatch_PublishesHotlistEnvelope(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	sub := &recordingSubscriber{}
	o.Hub().Subscribe("test", sub)

	batch := map[string]models.PairUpdate{"sol:addr6": strongUpdate("addr6")}
	o.processBatch(context.Background(), batch)

	if len(sub.envelopes) != 1 {
		t.Fatalf("expected 1 published envelope, got %d", len(sub.envelopes))
	}
	if sub.envelopes[0].Type != EnvelopeHotlist {
		t.Errorf("expected hotlist envelope type, got %q", sub.envelopes[0].Type)
	}
}

func TestHealth_UnhealthyWhenAnySubsystemDown(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.running.Store(true)
	o.RegisterHealthCheck("collector", func() (string, string) { return "down", "no updates" })
	o.RegisterHealthCheck("cache", func() (string, string) { return "up", "" })

	report := o.Health()
	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy overall status, got %q", report.Status)
	}
}

func TestHealth_DegradedWhenTwoSubsystemsDegraded(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.running.Store(true)
	o.RegisterHealthCheck("collector", func() (string, string) { return "degraded", "slow" })
	o.RegisterHealthCheck("sentinel", func() (string, string) { return "degraded", "slow" })

	report := o.Health()
	if report.Status != "degraded" {
		t.Errorf("expected degraded overall status, got %q", report.Status)
	}
}

func TestHealth_DegradedWhenNotRunning(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.RegisterHealthCheck("collector", func() (string, string) { return "up", "" })

	report := o.Health()
	if report.Status != "degraded" {
		t.Errorf("expected degraded status when orchestrator not running, got %q", report.Status)
	}
}

func TestHealth_HealthyWhenAllUp(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.running.Store(true)
	o.RegisterHealthCheck("collector", func() (string, string) { return "up", "" })
	o.RegisterHealthCheck("cache", func() (string, string) { return "up", "" })

	report := o.Health()
	if report.Status != "healthy" {
		t.Errorf("expected healthy overall status, got %q", report.Status)
	}
}
