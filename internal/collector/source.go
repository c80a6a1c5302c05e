package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/httpfetch"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// PairCandidate is a minimal discovery-time result, before a full snapshot
// has been fetched.
type PairCandidate struct {
	Address       string
	LiquidityUsd  float64
	PairCreatedAt int64
}

// Source abstracts a single upstream DEX data provider (dexscreener,
// geckoterminal, birdeye, ...) so the Collector's discovery/poll loops stay
// provider-agnostic; dynamic upstream JSON is validated into canonical
// entities at the edge, before anything downstream sees it.
type Source interface {
	Name() string
	Search(ctx context.Context, chain models.ChainId, keyword string) ([]PairCandidate, error)
	PairSnapshot(ctx context.Context, chain models.ChainId, pairAddress string) (models.PairUpdate, error)
}

// DexscreenerSource is the primary Source implementation, wired through
// httpfetch.Fetcher (rate-limited + circuit-broken) and reading through
// cache.Store for pair snapshots.
type DexscreenerSource struct {
	Fetcher *httpfetch.Fetcher
	Cache   cache.Store
}

func (d *DexscreenerSource) Name() string { return "dexscreener" }

type dexscreenerSearchResponse struct {
	Pairs []dexscreenerPair `json:"pairs"`
}

type dexscreenerPair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"`
	Txns     struct {
		M5 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"m5"`
	} `json:"txns"`
	Volume struct {
		M5  float64 `json:"m5"`
		M15 float64 `json:"m15"`
	} `json:"volume"`
	PriceChange struct {
		M5 float64 `json:"m5"`
	} `json:"priceChange"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // upstream reports millis
}

func (d *DexscreenerSource) Search(ctx context.Context, chain models.ChainId, keyword string) ([]PairCandidate, error) {
	key := fmt.Sprintf("discovery:%s:%s:%s", d.Name(), chain, keyword)
	if v, ok := d.Cache.Get(key); ok {
		if candidates, ok := v.([]PairCandidate); ok {
			return candidates, nil
		}
	}

	url := fmt.Sprintf("https://api.dexscreener.com/latest/dex/search?q=%s", keyword)
	body, ferr := d.Fetcher.Get(ctx, d.Name(), url, 10*time.Second, nil)
	if ferr != nil {
		return nil, ferr
	}

	var resp dexscreenerSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	candidates := make([]PairCandidate, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		if models.ChainId(normalizeChain(p.ChainID)) != chain {
			continue
		}
		candidates = append(candidates, PairCandidate{
			Address:       p.PairAddress,
			LiquidityUsd:  p.Liquidity.Usd,
			PairCreatedAt: p.PairCreatedAt / 1000,
		})
	}
	d.Cache.Set(key, candidates, cache.TTLDiscovery)
	return candidates, nil
}

func (d *DexscreenerSource) PairSnapshot(ctx context.Context, chain models.ChainId, pairAddress string) (models.PairUpdate, error) {
	key := fmt.Sprintf("pair:%s:%s:%s", d.Name(), chain, pairAddress)
	if v, ok := d.Cache.Get(key); ok {
		if update, ok := v.(models.PairUpdate); ok {
			return update, nil
		}
	}

	url := fmt.Sprintf("https://api.dexscreener.com/latest/dex/pairs/%s/%s", chainSlug(chain), pairAddress)
	body, ferr := d.Fetcher.Get(ctx, d.Name(), url, 10*time.Second, nil)
	if ferr != nil {
		return models.PairUpdate{}, ferr
	}

	var resp dexscreenerSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.PairUpdate{}, err
	}
	if len(resp.Pairs) == 0 {
		return models.PairUpdate{}, fmt.Errorf("dexscreener: no pair found for %s", pairAddress)
	}
	p := resp.Pairs[0]
	price, _ := strconv.ParseFloat(p.PriceUsd, 64)

	vol15 := p.Volume.M15
	if vol15 == 0 && p.Volume.M5 > 0 {
		// Emit-synthesis fallback: use the tripled 5m
		// volume only when upstream omits volume.m15 outright.
		vol15 = p.Volume.M5 * 3
	}

	update := models.PairUpdate{
		ChainId:     chain,
		PairAddress: p.PairAddress,
		Token: models.TokenRef{
			ChainId: chain,
			Address: p.BaseToken.Address,
			Symbol:  p.BaseToken.Symbol,
			Name:    p.BaseToken.Name,
		},
		Stats: models.PairStats{
			Buys5:         p.Txns.M5.Buys,
			Sells5:        p.Txns.M5.Sells,
			Vol5Usd:       p.Volume.M5,
			Vol15Usd:      vol15,
			PriceUsd:      price,
			PriceChange5m: p.PriceChange.M5,
			LiquidityUsd:  p.Liquidity.Usd,
			FdvUsd:        p.Fdv,
			PairCreatedAt: p.PairCreatedAt / 1000,
		},
		Ts: time.Now().UnixMilli(),
	}
	d.Cache.Set(key, update, cache.TTLPairSnapshot)
	return update, nil
}

func normalizeChain(upstream string) string {
	switch upstream {
	case "solana":
		return "sol"
	case "ethereum":
		return "eth"
	case "bsc":
		return "bsc"
	case "base":
		return "base"
	default:
		return upstream
	}
}

func chainSlug(c models.ChainId) string {
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
