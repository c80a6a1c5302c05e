package sentinel

import (
	"regexp"
	"strings"
	"time"
)

// Announcement is a single exchange listing/announcement-index item, parsed
// down to the fields the listing heuristics need.
type Announcement struct {
	Exchange    string
	Title       string
	Content     string
	Url         string
	PublishedAt time.Time
	Tokens      []string
	Markets     []string
}

// identity is the dedup key: an announcement is considered "the same one" as
// a prior run if both its title and publish time match.
func (a Announcement) identity() string {
	return a.Title + "|" + a.PublishedAt.UTC().Format(time.RFC3339)
}

var symbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-Z]{2,10})\s*\(`),
	regexp.MustCompile(`\(([A-Z]{2,10})\)`),
	regexp.MustCompile(`\b([A-Z]{2,10})\s+(?:token|coin|listing)\b`),
}

var marketPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b([A-Z]{2,10})/([A-Z]{2,10})\b`),
	regexp.MustCompile(`\b([A-Z]{2,10})-([A-Z]{2,10})\b`),
}

var symbolBlocklist = map[string]bool{
	"USD": true, "USDT": true, "USDC": true, "BTC": true, "ETH": true, "BNB": true,
	"API": true, "URL": true, "HTTP": true, "WWW": true, "COM": true,
	"NEW": true, "OLD": true, "ALL": true, "AND": true, "THE": true, "FOR": true, "NOW": true,
	"UTC": true, "GMT": true, "EST": true, "PST": true, "PDT": true, "EDT": true,
	"CEO": true, "CTO": true, "CMO": true, "CFO": true, "COO": true,
	"FAQ": true, "AMA": true, "IEO": true, "ICO": true, "IDO": true,
	"KYC": true, "AML": true, "P2P": true, "OTC": true, "DEX": true, "CEX": true,
}

var commonBases = []string{"USDT", "USDC", "BTC", "ETH", "BNB"}

var listingKeywords = []string{
	"listing", "list", "added", "support", "launch", "available", "trading",
	"spot trading", "new token", "new coin",
}

var delistingKeywords = []string{
	"delisting", "delist", "suspend", "maintenance", "withdrawal", "deposit",
	"upgrade", "migration",
}

// extractTokens finds candidate token symbols in text via the fixed regex
// set, deduplicated and filtered against the common-word blocklist.
func extractTokens(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, re := range symbolPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			sym := m[1]
			if symbolBlocklist[sym] || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// extractMarkets finds explicit SYMBOL/SYMBOL or SYMBOL-SYMBOL pairs; when
// none are present, it infers "*/<BASE>" for each common quote currency that
// appears in the title.
func extractMarkets(title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, re := range marketPatterns {
		for _, m := range re.FindAllStringSubmatch(title, -1) {
			market := m[1] + "/" + m[2]
			if seen[market] {
				continue
			}
			seen[market] = true
			out = append(out, market)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, base := range commonBases {
		if strings.Contains(title, base) {
			market := "*/" + base
			if !seen[market] {
				seen[market] = true
				out = append(out, market)
			}
		}
	}
	return out
}

// isListing applies the listing-detection predicate: the combined title and
// content must mention a listing-positive keyword and none of the
// delisting/maintenance keywords.
func isListing(title, content string) bool {
	haystack := strings.ToLower(title + " " + content)
	matched := false
	for _, kw := range listingKeywords {
		if strings.Contains(haystack, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, kw := range delistingKeywords {
		if strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}
