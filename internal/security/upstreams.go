package security

import (
	"encoding/json"
	"fmt"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

// chainIdForGoPlus maps our ChainId enum to the numeric chain IDs GoPlus's
// token-security API expects.
func chainIdForGoPlus(c models.ChainId) string {
	switch c {
	case models.ChainEthereum:
		return "1"
	case models.ChainBSC:
		return "56"
	case models.ChainBase:
		return "8453"
	case models.ChainSolana:
		return "solana"
	default:
		return ""
	}
}

func contractRiskURL(chain models.ChainId, address string) string {
	return fmt.Sprintf("https://api.gopluslabs.io/api/v1/token_security/%s?contract_addresses=%s",
		chainIdForGoPlus(chain), address)
}

func honeypotURL(chain models.ChainId, address string) string {
	return fmt.Sprintf("https://api.honeypot.is/v2/IsHoneypot?address=%s&chainID=%s",
		address, chainIdForGoPlus(chain))
}

type goPlusTokenEntry struct {
	IsMintable      string `json:"is_mintable"`
	IsProxy         string `json:"is_proxy"`
	IsBlacklisted   string `json:"is_blacklisted"`
	CannotSellAll   string `json:"cannot_sell_all"`
	IsAntiWhale     string `json:"is_anti_whale"`
	TradingCooldown string `json:"trading_cooldown"`
	ExternalCall    string `json:"external_call"`
	IsAirdropScam   string `json:"is_airdrop_scam"`
	IsTrueToken     string `json:"is_true_token"`
	BuyTax          string `json:"buy_tax"`
	SellTax         string `json:"sell_tax"`
}

type goPlusResponse struct {
	Code   int                         `json:"code"`
	Result map[string]goPlusTokenEntry `json:"result"`
}

func parseContractRisk(body []byte) (ContractRisk, error) {
	var resp goPlusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ContractRisk{}, err
	}
	for _, entry := range resp.Result {
		risk := ContractRisk{
			Found:              true,
			BuyTaxPercent:      parsePercent(entry.BuyTax),
			SellTaxPercent:     parsePercent(entry.SellTax),
			IsMintable:         entry.IsMintable == "1",
			IsUpgradeable:      entry.IsProxy == "1",
			IsBlacklistable:    entry.IsBlacklisted == "1",
			HasAntiWhale:       entry.IsAntiWhale == "1",
			HasTradingCooldown: entry.TradingCooldown == "1",
			HasExternalCall:    entry.ExternalCall == "1",
			IsAirdropScam:      entry.IsAirdropScam == "1",
			CannotSell:         entry.CannotSellAll == "1",
			IsFakeToken:        entry.IsTrueToken == "0",
		}
		return risk, nil
	}
	return ContractRisk{}, fmt.Errorf("goplus: no result entries in response")
}

type honeypotResponse struct {
	Honeypot struct {
		IsHoneypot bool `json:"isHoneypot"`
	} `json:"honeypotResult"`
	Simulation struct {
		BuyTax  float64 `json:"buyTax"`
		SellTax float64 `json:"sellTax"`
	} `json:"simulationResult"`
	Summary struct {
		RiskLevel int `json:"riskLevel"`
	} `json:"summary"`
}

func parseHoneypot(body []byte) (HoneypotResult, error) {
	var resp honeypotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return HoneypotResult{}, err
	}
	return HoneypotResult{
		Found:          true,
		IsHoneypot:     resp.Honeypot.IsHoneypot,
		BuyTaxPercent:  resp.Simulation.BuyTax,
		SellTaxPercent: resp.Simulation.SellTax,
		RiskLevel:      resp.Summary.RiskLevel,
	}, nil
}

func parsePercent(s string) float64 {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	if err != nil {
		return 0
	}
	return f
}
