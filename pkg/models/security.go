package models

// SecurityReport is the merged, penalty-scored verdict produced by the
// SecurityAuditor for a single token address. It is immutable for its cache
// lifetime (1 hour); a fresh analysis always produces a new value rather than
// mutating an existing report.
type SecurityReport struct {
	Address    string   `json:"address"`
	SecurityOk bool     `json:"security_ok"`
	Penalty    int      `json:"penalty"` // 0..100, higher is worse
	Flags      []string `json:"flags"`
	Sources    []string `json:"sources"` // subset of {"goplus", "honeypot"}
}

// HasFlag reports whether the named risk flag was set on this report.
func (r SecurityReport) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Degraded builds the fallback report used when security analysis itself
// fails (both upstreams erroring, or a panic-free internal fault) — the
// token is treated as ineligible for this cycle rather than trusted blindly.
func Degraded(address string) SecurityReport {
	return SecurityReport{
		Address:    address,
		SecurityOk: false,
		Penalty:    50,
		Flags:      []string{"analysis_failed"},
	}
}
