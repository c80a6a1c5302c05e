package models

// ListingTokenRef is the (possibly incomplete) token identification a CEX
// announcement yields — Sentinel may only ever learn a symbol, never an
// on-chain address.
type ListingTokenRef struct {
	Symbol  string  `json:"symbol"`
	Address string  `json:"address,omitempty"`
	ChainId ChainId `json:"chainId,omitempty"`
}

// CEXListingEvent is emitted by the Sentinel when an exchange announcement
// is classified as a new listing (as opposed to a delisting or maintenance
// notice).
type CEXListingEvent struct {
	Source       string          `json:"source"` // always "cex_listing"
	Exchange     string          `json:"exchange"`
	Markets      []string        `json:"markets"`
	Urls         []string        `json:"urls"`
	Token        ListingTokenRef `json:"token"`
	Confirmation string          `json:"confirmation"` // "address" | "symbol_only"
	RadarScore   float64         `json:"radarScore"`
	LiquidityUsd float64         `json:"liquidityUsd"`
	Ts           int64           `json:"ts"` // unix millis, from the announcement's publish time
}
