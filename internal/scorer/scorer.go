// Package scorer derives Signals from a PairUpdate, Baseline and
// SecurityReport, combines them into a clamped composite score with
// human-readable reasons, and maintains the category leaderboards. The shape
// is an additive, per-signal-weighted score with a clamp and a parallel
// "reasons" string slice: higher means more interesting, not more dangerous.
package scorer

import (
	"fmt"
	"math"
	"sort"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

// Weights are the fixed composite-score coefficients.
const (
	weightImbalance        = 28.0
	weightSurge            = 28.0
	weightPriceAccel       = 16.0
	weightLiquidityQuality = 18.0
	weightAge              = 10.0
)

// Compute derives the Signals for a single pair update given its baseline and
// security report.
func Compute(update models.PairUpdate, baseline models.Baseline, security models.SecurityReport, listingBoostActive bool, nowMs int64) models.Signals {
	s := models.Signals{}

	total := update.Stats.Buys5 + update.Stats.Sells5
	if total > 0 {
		s.Imbalance5 = float64(update.Stats.Buys5-update.Stats.Sells5) / float64(total)
	}

	s.Surge15 = surge15(update.Stats.Vol15Usd, baseline)
	s.PriceAccel = priceAccel(baseline)
	s.LiquidityQuality = liquidityQuality(update.Stats.LiquidityUsd, update.Stats.Vol15Usd)
	s.AgeFactor = ageFactor(update.AgeMinutes(nowMs))
	s.SecurityPenalty = float64(security.Penalty)
	if listingBoostActive {
		s.ListingBoost = 10
	}
	return s
}

// surge15 returns the ratio of current 15m volume to the EWMA baseline. It
// always uses the EWMA baseline, never the tripled-5m alert-gate shortcut.
func surge15(vol15 float64, baseline models.Baseline) float64 {
	if len(baseline.VolHistory) < 3 {
		if vol15 > 0 && baseline.Vol15Ewma == 0 {
			return 10
		}
		return 1
	}
	if baseline.Vol15Ewma <= 0 {
		return 1
	}
	return vol15 / baseline.Vol15Ewma
}

func priceAccel(baseline models.Baseline) float64 {
	raw := 100 * (baseline.PriceSlope1m - baseline.PriceSlope5m)
	return clamp(raw, -3, 3)
}

func liquidityQuality(liquidityUsd, vol15Usd float64) float64 {
	if liquidityUsd <= 0 {
		return 0
	}
	q := math.Log10(liquidityUsd)
	vol24hApprox := vol15Usd * 96 // 15m windows per 24h, coarse extrapolation absent a dedicated 24h feed
	turnover := vol24hApprox / liquidityUsd
	switch {
	case turnover > 0.1 && turnover < 5:
		q += 1
	case turnover > 10:
		q -= 0.5
	}
	return q
}

// ageFactor ramps 0->1 over [0,2]h, holds at 1 over [2,48]h, then decays
// linearly to 0 over [48,96]h.
func ageFactor(ageMinutes float64) float64 {
	ageHours := ageMinutes / 60.0
	switch {
	case ageHours <= 0:
		return 0
	case ageHours < 2:
		return ageHours / 2.0
	case ageHours <= 48:
		return 1
	case ageHours < 96:
		return 1 - (ageHours-48)/48.0
	default:
		return 0
	}
}

func zScore(x, mu, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return (x - mu) / sigma
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Score combines Signals into the final clamped composite via a fixed
// weighted formula.
func Score(s models.Signals) float64 {
	score := weightImbalance*math.Max(0, s.Imbalance5) +
		weightSurge*clamp(zScore(s.Surge15, 1, 2)/3, 0, 1) +
		weightPriceAccel*clamp((s.PriceAccel+3)/6, 0, 1) +
		weightLiquidityQuality*clamp(s.LiquidityQuality/6, 0, 1) +
		weightAge*s.AgeFactor -
		s.SecurityPenalty +
		s.ListingBoost
	return clamp(score, 0, 100)
}

// Reasons builds the human-readable explanation strings for whichever
// signals are materially positive, appending one plain-English sentence per
// contributing factor.
func Reasons(s models.Signals) []string {
	var reasons []string
	if s.Imbalance5 > 0.3 {
		reasons = append(reasons, fmt.Sprintf("Strong buy pressure (%.0f%%)", s.Imbalance5*100))
	}
	if s.Surge15 > 2 {
		reasons = append(reasons, fmt.Sprintf("Volume surge %.1fx", s.Surge15))
	}
	if s.PriceAccel > 1 {
		reasons = append(reasons, "Price acceleration detected")
	}
	if s.LiquidityQuality > 4 {
		reasons = append(reasons, "High liquidity quality")
	}
	if s.AgeFactor > 0.8 {
		reasons = append(reasons, "Optimal age range")
	}
	if s.SecurityPenalty > 0 {
		reasons = append(reasons, fmt.Sprintf("Security penalty: -%.0f", s.SecurityPenalty))
	}
	if s.ListingBoost > 0 {
		reasons = append(reasons, fmt.Sprintf("CEX listing boost: +%.0f", s.ListingBoost))
	}
	return reasons
}

// Eligible reports whether a summary qualifies for any leaderboard, against
// the eligibility gates every leaderboard category shares.
func Eligible(t models.TokenSummary, minLiqList, maxAgeHours float64) bool {
	return t.Security.Ok &&
		t.LiquidityUsd >= minLiqList &&
		t.AgeMinutes <= maxAgeHours*60 &&
		t.Score >= 55
}

// BuildLeaderboards partitions an eligible token set into the four ranked
// categories, each capped at models.MaxLeaderboardSize.
func BuildLeaderboards(tokens []models.TokenSummary) models.Leaderboard {
	lb := make(models.Leaderboard, len(models.AllCategories))

	newMints := filter(tokens, func(t models.TokenSummary) bool { return t.AgeMinutes <= 120 })
	sort.SliceStable(newMints, func(i, j int) bool {
		if math.Abs(newMints[i].AgeMinutes-newMints[j].AgeMinutes) > 30 {
			return newMints[i].AgeMinutes < newMints[j].AgeMinutes
		}
		return newMints[i].Score > newMints[j].Score
	})
	lb[models.CategoryNewMints] = cap50(newMints)

	momentum := filter(tokens, func(t models.TokenSummary) bool { return t.Buys5 > t.Sells5 })
	sort.SliceStable(momentum, func(i, j int) bool {
		ii := imbalanceOf(momentum[i])
		jj := imbalanceOf(momentum[j])
		if math.Abs(ii-jj) > 0.1 {
			return ii > jj
		}
		return momentum[i].Vol5Usd > momentum[j].Vol5Usd
	})
	lb[models.CategoryMomentum5m] = cap50(momentum)

	continuation := filter(tokens, func(t models.TokenSummary) bool { return t.Vol15Usd > 2*t.Vol5Usd })
	sort.SliceStable(continuation, func(i, j int) bool {
		ri := continuation[i].Vol15Usd / math.Max(1, continuation[i].Vol5Usd)
		rj := continuation[j].Vol15Usd / math.Max(1, continuation[j].Vol5Usd)
		if math.Abs(ri-rj) > 0.5 {
			return ri > rj
		}
		return continuation[i].Score > continuation[j].Score
	})
	lb[models.CategoryContinuation15m] = cap50(continuation)

	unusual := filter(tokens, func(t models.TokenSummary) bool {
		turnover := t.Vol15Usd / math.Max(1, t.LiquidityUsd)
		return turnover > 0.5 && turnover < 20
	})
	sort.SliceStable(unusual, func(i, j int) bool {
		ti := unusual[i].Vol15Usd / math.Max(1, unusual[i].LiquidityUsd)
		tj := unusual[j].Vol15Usd / math.Max(1, unusual[j].LiquidityUsd)
		return ti > tj
	})
	lb[models.CategoryUnusualVolume] = cap50(unusual)

	return lb
}

func imbalanceOf(t models.TokenSummary) float64 {
	total := t.Buys5 + t.Sells5
	if total == 0 {
		return 0
	}
	return float64(t.Buys5-t.Sells5) / float64(total)
}

func filter(tokens []models.TokenSummary, pred func(models.TokenSummary) bool) []models.TokenSummary {
	out := make([]models.TokenSummary, 0, len(tokens))
	for _, t := range tokens {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

func cap50(tokens []models.TokenSummary) []models.TokenSummary {
	if len(tokens) > models.MaxLeaderboardSize {
		return tokens[:models.MaxLeaderboardSize]
	}
	return tokens
}
