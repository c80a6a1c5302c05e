package sentinel

import (
	"reflect"
	"testing"
)

func TestExtractTokens(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"paren-after", "Introducing PEPE (PEPE) listing", []string{"PEPE"}},
		{"paren-wrap", "New listing: (WOJAK) now live", []string{"WOJAK"}},
		{"token-suffix", "FLOKI token is now available", []string{"FLOKI"}},
		{"blocklisted", "Deposit USDT and USDC now open for API access", nil},
		{"dedup", "BONK (BONK) BONK token", []string{"BONK"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractTokens(tc.text)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("extractTokens(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractMarkets_Explicit(t *testing.T) {
	got := extractMarkets("New trading pair PEPE/USDT and WOJAK-BTC now live")
	want := []string{"PEPE/USDT", "WOJAK/BTC"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extractMarkets = %v, want %v", got, want)
	}
}

func TestExtractMarkets_InferredFromBase(t *testing.T) {
	got := extractMarkets("Will launch USDT trading for a new token")
	want := []string{"*/USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extractMarkets = %v, want %v", got, want)
	}
}

func TestIsListing_PositiveKeyword(t *testing.T) {
	if !isListing("New coin listing: PEPE now available for spot trading", "") {
		t.Error("expected listing predicate to match")
	}
}

func TestIsListing_ExclusionWins(t *testing.T) {
	if isListing("PEPE trading suspended for maintenance", "") {
		t.Error("expected suspend+maintenance to veto a listing match")
	}
}

func TestIsListing_NoKeywordMatch(t *testing.T) {
	if isListing("Quarterly platform security audit results", "") {
		t.Error("expected no listing match without a listing keyword")
	}
}
