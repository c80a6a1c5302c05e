// Package security implements the SecurityAuditor: a cached, concurrency
// capped merger of two upstream risk sources (a contract-risk scanner and an
// EVM honeypot simulator) into a single SecurityReport per token address.
// The accumulative-penalty-with-flag-set model builds a risk score by
// walking a fixed list of conditions, adding a weight and a label for each
// one that holds, and clamping at the end.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/httpfetch"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// DefaultMaxTaxPercent and DefaultMaxConcurrentChecks are the audit's default thresholds.
const (
	DefaultMaxTaxPercent       = 10.0
	DefaultMaxConcurrentChecks = 5
	batchPause                 = 2 * time.Second
	upstreamDeadline           = 10 * time.Second
)

// ContractRisk is the subset of a contract-scanner response this auditor
// consumes.
type ContractRisk struct {
	Found              bool
	BuyTaxPercent      float64
	SellTaxPercent     float64
	IsMintable         bool
	IsUpgradeable      bool
	IsBlacklistable    bool
	HasAntiWhale       bool
	HasTradingCooldown bool
	HasExternalCall    bool
	HasGasAbuse        bool
	IsAirdropScam      bool
	CannotSell         bool
	IsFakeToken        bool
}

// HoneypotResult is the subset of an EVM honeypot simulator response this
// auditor consumes.
type HoneypotResult struct {
	Found          bool
	IsHoneypot     bool
	BuyTaxPercent  float64
	SellTaxPercent float64
	RiskLevel      int
}

// UpstreamClient is implemented by the two concrete upstream adapters; tests
// substitute fakes satisfying this interface.
type UpstreamClient interface {
	FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (ContractRisk, error)
	FetchHoneypot(ctx context.Context, chain models.ChainId, address string) (HoneypotResult, error)
}

// HTTPUpstreams is the production UpstreamClient, wired through
// httpfetch.Fetcher. Concrete endpoint construction is intentionally small:
// this radar depends on whatever shape goplus/honeypot.is expose without
// modeling their full response schemas.
type HTTPUpstreams struct {
	Fetcher *httpfetch.Fetcher
}

func (h *HTTPUpstreams) FetchContractRisk(ctx context.Context, chain models.ChainId, address string) (ContractRisk, error) {
	url := contractRiskURL(chain, address)
	body, err := h.Fetcher.Get(ctx, "goplus", url, upstreamDeadline, nil)
	if err != nil {
		return ContractRisk{}, err
	}
	return parseContractRisk(body)
}

func (h *HTTPUpstreams) FetchHoneypot(ctx context.Context, chain models.ChainId, address string) (HoneypotResult, error) {
	if !chain.SupportsHoneypotCheck() {
		return HoneypotResult{}, nil
	}
	url := honeypotURL(chain, address)
	body, err := h.Fetcher.Get(ctx, "honeypot", url, upstreamDeadline, nil)
	if err != nil {
		return HoneypotResult{}, err
	}
	return parseHoneypot(body)
}

// Auditor produces cached SecurityReports and supports concurrency-capped
// batch analysis.
type Auditor struct {
	upstreams     UpstreamClient
	cache         cache.Store
	maxConcurrent int
	maxTaxPercent float64
}

// New constructs an Auditor. cacheStore may be a cache.Local or cache.Redis —
// any cache.Store works.
func New(upstreams UpstreamClient, cacheStore cache.Store) *Auditor {
	return &Auditor{
		upstreams:     upstreams,
		cache:         cacheStore,
		maxConcurrent: DefaultMaxConcurrentChecks,
		maxTaxPercent: DefaultMaxTaxPercent,
	}
}

// Analyze returns the cached SecurityReport for (chain, address) if fresh,
// otherwise performs a fresh analysis and caches it for one hour. A degraded
// report is not cached, so the next call analyzes the token again.
func (a *Auditor) Analyze(ctx context.Context, chain models.ChainId, address string) models.SecurityReport {
	key := "security:" + string(chain) + ":" + address
	if v, ok := a.cache.Get(key); ok {
		if report, ok := v.(models.SecurityReport); ok {
			return report
		}
	}

	report := a.analyzeFresh(ctx, chain, address)
	if !report.HasFlag("analysis_failed") {
		a.cache.Set(key, report, cache.TTLSecurity)
	}
	return report
}

func (a *Auditor) analyzeFresh(ctx context.Context, chain models.ChainId, address string) models.SecurityReport {
	var (
		wg                sync.WaitGroup
		contractRisk      ContractRisk
		honeypot          HoneypotResult
		contractRiskFound bool
		honeypotFound     bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, upstreamDeadline)
		defer cancel()
		if r, err := a.upstreams.FetchContractRisk(cctx, chain, address); err == nil {
			contractRisk = r
			contractRiskFound = true
		}
	}()
	go func() {
		defer wg.Done()
		hctx, cancel := context.WithTimeout(ctx, upstreamDeadline)
		defer cancel()
		if r, err := a.upstreams.FetchHoneypot(hctx, chain, address); err == nil && r.Found {
			honeypot = r
			honeypotFound = true
		}
	}()
	wg.Wait()

	if !contractRiskFound && !honeypotFound {
		return models.Degraded(address)
	}

	return merge(address, contractRisk, honeypot, contractRiskFound, honeypotFound, a.maxTaxPercent)
}

func merge(address string, cr ContractRisk, hp HoneypotResult, crOK, hpOK bool, maxTax float64) models.SecurityReport {
	var flags []string
	var sources []string
	penalty := 0

	if crOK {
		sources = append(sources, "goplus")
		if cr.IsFakeToken {
			flags = append(flags, "fake_token")
			penalty += 100
		}
		if cr.CannotSell {
			flags = append(flags, "cannot_sell")
			penalty += 100
		}
		if maxOf(cr.BuyTaxPercent, cr.SellTaxPercent) > maxTax {
			flags = append(flags, "high_tax")
			penalty += 15
		}
		if cr.IsUpgradeable {
			flags = append(flags, "upgradeable")
			penalty += 12
		}
		if cr.IsBlacklistable {
			flags = append(flags, "blacklistable")
			penalty += 12
		}
		if cr.IsMintable {
			flags = append(flags, "mintable")
			penalty += 8
		}
		if cr.HasAntiWhale {
			flags = append(flags, "anti_whale")
			penalty += 5
		}
		if cr.HasTradingCooldown {
			flags = append(flags, "trading_cooldown")
			penalty += 5
		}
		if cr.HasExternalCall {
			flags = append(flags, "external_call")
			penalty += 3
		}
		if cr.HasGasAbuse {
			flags = append(flags, "gas_abuse")
			penalty += 3
		}
		if cr.IsAirdropScam {
			flags = append(flags, "airdrop_scam")
			penalty += 20
		}
	}

	if hpOK {
		sources = append(sources, "honeypot")
		if hp.IsHoneypot {
			flags = append(flags, "honeypot")
			penalty += 100
		}
		if maxOf(hp.BuyTaxPercent, hp.SellTaxPercent) > maxTax && !contains(flags, "high_tax") {
			flags = append(flags, "high_tax")
			penalty += 15
		}
		if hp.RiskLevel > 7 {
			flags = append(flags, "high_risk")
			penalty += 10
		}
	}

	if penalty > 100 {
		penalty = 100
	}

	ok := penalty < 50 && !contains(flags, "honeypot") && !contains(flags, "cannot_sell") && !contains(flags, "fake_token")

	return models.SecurityReport{
		Address:    address,
		SecurityOk: ok,
		Penalty:    penalty,
		Flags:      flags,
		Sources:    sources,
	}
}

func contains(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// AnalyzeBatch processes tokens with bounded concurrency, pausing between
// waves. A per-token failure never aborts the batch — callers receive the
// degraded report for that token and move on, matching the collector's
// "missing data, not crash" error policy.
func (a *Auditor) AnalyzeBatch(ctx context.Context, tokens []models.TokenRef) map[string]models.SecurityReport {
	results := make(map[string]models.SecurityReport, len(tokens))
	var mu sync.Mutex

	for start := 0; start < len(tokens); start += a.maxConcurrent {
		end := start + a.maxConcurrent
		if end > len(tokens) {
			end = len(tokens)
		}
		wave := tokens[start:end]

		var wg sync.WaitGroup
		for _, tok := range wave {
			wg.Add(1)
			go func(tok models.TokenRef) {
				defer wg.Done()
				report := a.Analyze(ctx, tok.ChainId, tok.Address)
				mu.Lock()
				results[tok.Key()] = report
				mu.Unlock()
			}(tok)
		}
		wg.Wait()

		if end < len(tokens) {
			time.Sleep(batchPause)
		}
	}
	return results
}
