package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rawblock/memecoin-radar/internal/httpfetch"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// platformPriority is the fixed resolution order when a symbol directory
// reports addresses on more than one platform.
var platformPriority = []struct {
	platform string
	chain    models.ChainId
}{
	{"ethereum", models.ChainEthereum},
	{"binance-smart-chain", models.ChainBSC},
	{"solana", models.ChainSolana},
}

// AddressDirectory resolves a bare ticker symbol to an on-chain address, so
// a CEXListingEvent can carry address-level confirmation instead of just a
// symbol.
type AddressDirectory interface {
	Lookup(ctx context.Context, symbol string) (address string, chain models.ChainId, found bool)
}

// HTTPAddressDirectory queries a generic coin-symbol-to-platform-address
// directory (the shape the CoinGecko "coins/list?include_platform=true"
// endpoint exposes).
type HTTPAddressDirectory struct {
	Fetcher *httpfetch.Fetcher
	BaseURL string // e.g. "https://api.coingecko.com/api/v3"
}

type directoryEntry struct {
	Symbol    string            `json:"symbol"`
	Platforms map[string]string `json:"platforms"`
}

func (d *HTTPAddressDirectory) Lookup(ctx context.Context, symbol string) (string, models.ChainId, bool) {
	url := fmt.Sprintf("%s/coins/list?include_platform=true", d.BaseURL)
	body, ferr := d.Fetcher.Get(ctx, "symbol_directory", url, 10*time.Second, nil)
	if ferr != nil {
		return "", "", false
	}

	var entries []directoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return "", "", false
	}

	for _, e := range entries {
		if !strings.EqualFold(e.Symbol, symbol) {
			continue
		}
		for _, p := range platformPriority {
			if addr, ok := e.Platforms[p.platform]; ok && addr != "" {
				return addr, p.chain, true
			}
		}
	}
	return "", "", false
}

// NullDirectory never resolves an address; every listing stays
// confirmation="symbol_only". Useful when no directory API key is
// configured.
type NullDirectory struct{}

func (NullDirectory) Lookup(ctx context.Context, symbol string) (string, models.ChainId, bool) {
	return "", "", false
}
