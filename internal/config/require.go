package config

import (
	"os"

	"github.com/rawblock/memecoin-radar/internal/obs"
)

// RequireEnv reads a required environment variable and exits the process if
// unset — a last-resort escape hatch for secrets Load() has no business
// defaulting (e.g. API_AUTH_TOKEN in a release deployment that demands one).
func RequireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		obs.Component("config").Fatal().
			Str("key", key).
			Msg("required environment variable is not set")
	}
	return val
}
