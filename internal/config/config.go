// Package config loads the radar's configuration once at startup into an
// immutable Snapshot, then exposes it through an atomically-swappable Store so
// an admin update can take effect without restarting any running task.
//
// The env-var-first precedence (env override > config.yaml > default) mirrors
// a requireEnv/getEnvOrDefault helper pair; the atomic swap is additional
// machinery needed because this configuration can change after startup,
// unlike a process that reads it once and never again.
package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Thresholds are the numeric gates the orchestrator and scorer consult.
type Thresholds struct {
	MinLiqList    float64
	MinLiqAlert   float64
	MaxTaxPercent float64
	MaxAgeHours   float64
	ScoreAlert    float64
	Surge15Min    float64
	Imbalance5Min float64
}

// Cadences are the tick intervals driving the collector and sentinel.
type Cadences struct {
	RefreshInterval         time.Duration
	SentinelRefreshInterval time.Duration
}

// FeatureGates are advisory flags read verbatim by external collaborators
// (e.g. the API gateway); the pipeline itself never branches on them except
// where a concrete gate consults them.
type FeatureGates struct {
	RadarOnly                bool
	EnablePortfolioSim       bool
	EnableTradeActions       bool
	EnableWalletIntegrations bool
}

// Snapshot is the full, immutable configuration in effect at a point in time.
// Callers must never mutate a Snapshot they've read; Store.Swap is the only
// sanctioned way to change configuration.
type Snapshot struct {
	Chains     []string
	Thresholds Thresholds
	Cadences   Cadences
	Gates      FeatureGates

	Port            string
	GinMode         string
	APIAuthToken    string
	AllowedOrigins  []string
	DatabaseURL     string
	RedisURL        string
	LogPretty       bool
	LogLevel        string
	EnableSynthetic bool
}

// Store holds the currently-active Snapshot behind an atomic pointer so
// readers never observe a torn/partial update.
type Store struct {
	ptr atomic.Pointer[Snapshot]
}

// NewStore builds a Store seeded with snap.
func NewStore(snap Snapshot) *Store {
	s := &Store{}
	s.ptr.Store(&snap)
	return s
}

// Get returns the currently active snapshot. The returned value is a copy of
// the pointer target's fields at the moment of the last Swap, safe to read
// concurrently with other Gets and Swaps.
func (s *Store) Get() Snapshot {
	return *s.ptr.Load()
}

// Swap atomically installs a new snapshot, to be observed by the next read
// any task performs — in-flight pipeline passes keep using the snapshot they
// already captured at their own start.
func (s *Store) Swap(next Snapshot) {
	s.ptr.Store(&next)
}

// Load builds a Snapshot from the environment, an optional config.yaml in the
// working directory, and hard defaults, in that precedence order (env wins).
func Load() (Snapshot, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Snapshot{}, err
		}
	}

	snap := Snapshot{
		Chains: v.GetStringSlice("chains"),
		Thresholds: Thresholds{
			MinLiqList:    v.GetFloat64("min_liq_list"),
			MinLiqAlert:   v.GetFloat64("min_liq_alert"),
			MaxTaxPercent: v.GetFloat64("max_tax"),
			MaxAgeHours:   v.GetFloat64("max_age_hours"),
			ScoreAlert:    v.GetFloat64("score_alert"),
			Surge15Min:    v.GetFloat64("surge15_min"),
			Imbalance5Min: v.GetFloat64("imbalance5_min"),
		},
		Cadences: Cadences{
			RefreshInterval:         time.Duration(v.GetInt64("refresh_ms")) * time.Millisecond,
			SentinelRefreshInterval: time.Duration(v.GetInt64("sentinel_refresh_ms")) * time.Millisecond,
		},
		Gates: FeatureGates{
			RadarOnly:                v.GetBool("radar_only"),
			EnablePortfolioSim:       v.GetBool("enable_portfolio_sim"),
			EnableTradeActions:       v.GetBool("enable_trade_actions"),
			EnableWalletIntegrations: v.GetBool("enable_wallet_integrations"),
		},
		Port:            v.GetString("port"),
		GinMode:         v.GetString("gin_mode"),
		APIAuthToken:    v.GetString("api_auth_token"),
		AllowedOrigins:  splitCSV(v.GetString("allowed_origins")),
		DatabaseURL:     v.GetString("database_url"),
		RedisURL:        v.GetString("redis_url"),
		LogPretty:       v.GetBool("log_pretty"),
		LogLevel:        v.GetString("log_level"),
		EnableSynthetic: v.GetBool("enable_synthetic"),
	}
	if len(snap.Chains) == 0 {
		snap.Chains = []string{"sol", "eth", "bsc", "base"}
	}
	return snap, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chains", []string{"sol", "eth", "bsc", "base"})
	v.SetDefault("min_liq_list", 12000.0)
	v.SetDefault("min_liq_alert", 20000.0)
	v.SetDefault("max_tax", 10.0)
	v.SetDefault("max_age_hours", 48.0)
	v.SetDefault("score_alert", 70.0)
	v.SetDefault("surge15_min", 2.5)
	v.SetDefault("imbalance5_min", 0.4)
	v.SetDefault("refresh_ms", 30000)
	v.SetDefault("sentinel_refresh_ms", 120000)
	v.SetDefault("radar_only", false)
	v.SetDefault("enable_portfolio_sim", false)
	v.SetDefault("enable_trade_actions", false)
	v.SetDefault("enable_wallet_integrations", false)
	v.SetDefault("port", "5339")
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("log_pretty", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("enable_synthetic", false)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
