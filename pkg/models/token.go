package models

// TokenRef identifies a token on a specific chain. Equality is
// (ChainId, Address); Symbol/Name are display-only and may be stale.
type TokenRef struct {
	ChainId ChainId `json:"chainId"`
	Address string  `json:"address"`
	Symbol  string  `json:"symbol"`
	Name    string  `json:"name"`
}

// Key returns the canonical identity of the token, suitable as a map key.
func (t TokenRef) Key() string {
	return string(t.ChainId) + ":" + t.Address
}
