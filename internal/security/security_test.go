package security

import (
	"context"
	"testing"

	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

type fakeUpstream struct {
	contractRisk ContractRisk
	honeypot     HoneypotResult
	contractErr  error
	honeypotErr  error
}

func (f *fakeUpstream) FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (ContractRisk, error) {
	return f.contractRisk, f.contractErr
}

func (f *fakeUpstream) FetchHoneypot(ctx context.Context, chain models.ChainId, address string) (HoneypotResult, error) {
	return f.honeypot, f.honeypotErr
}

func TestAnalyze_HoneypotFlagForcesIneligible(t *testing.T) {
	up := &fakeUpstream{
		contractRisk: ContractRisk{Found: true},
		honeypot:     HoneypotResult{Found: true, IsHoneypot: true},
	}
	a := New(up, cache.NewLocal())
	report := a.Analyze(context.Background(), models.ChainEthereum, "0xabc")

	if report.SecurityOk {
		t.Fatalf("expected security_ok=false for a honeypot token")
	}
	if report.Penalty != 100 {
		t.Errorf("expected penalty=100, got %d", report.Penalty)
	}
	if !report.HasFlag("honeypot") {
		t.Errorf("expected honeypot flag to be set")
	}
}

func TestAnalyze_CleanTokenIsOk(t *testing.T) {
	up := &fakeUpstream{
		contractRisk: ContractRisk{Found: true},
		honeypot:     HoneypotResult{Found: true},
	}
	a := New(up, cache.NewLocal())
	report := a.Analyze(context.Background(), models.ChainEthereum, "0xclean")

	if !report.SecurityOk {
		t.Fatalf("expected security_ok=true for a clean token, got flags=%v penalty=%d", report.Flags, report.Penalty)
	}
}

func TestAnalyze_BothUpstreamsFailingDegrades(t *testing.T) {
	up := &fakeUpstream{contractErr: errTest, honeypotErr: errTest}
	a := New(up, cache.NewLocal())
	report := a.Analyze(context.Background(), models.ChainEthereum, "0xdead")

	if report.SecurityOk {
		t.Fatalf("expected degraded report to be ineligible")
	}
	if !report.HasFlag("analysis_failed") {
		t.Errorf("expected analysis_failed flag, got %v", report.Flags)
	}
}

func TestAnalyze_CachesResult(t *testing.T) {
	calls := 0
	up := &countingUpstream{fakeUpstream: fakeUpstream{contractRisk: ContractRisk{Found: true}, honeypot: HoneypotResult{Found: true}}, calls: &calls}
	a := New(up, cache.NewLocal())

	a.Analyze(context.Background(), models.ChainEthereum, "0xcached")
	a.Analyze(context.Background(), models.ChainEthereum, "0xcached")

	if calls != 1 {
		t.Errorf("expected upstream to be consulted once due to caching, got %d calls", calls)
	}
}

func TestAnalyzeBatch_ContinuesPastIndividualFailures(t *testing.T) {
	up := &fakeUpstream{contractErr: errTest, honeypotErr: errTest}
	a := New(up, cache.NewLocal())
	tokens := []models.TokenRef{
		{ChainId: models.ChainEthereum, Address: "0x1"},
		{ChainId: models.ChainEthereum, Address: "0x2"},
	}

	results := a.AnalyzeBatch(context.Background(), tokens)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.SecurityOk {
			t.Errorf("expected degraded reports to be ineligible")
		}
	}
}

type countingUpstream struct {
	fakeUpstream
	calls *int
}

func (c *countingUpstream) FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (ContractRisk, error) {
	*c.calls++
	return c.fakeUpstream.FetchContractRisk(ctx, chain, address)
}

var errTest = &testError{"upstream failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
