// Package config defines all configuration for the trading daemon. Config
// is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields and a handful of operational knobs overridable via
// TRADER_*/POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"quarterbinary/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Mode       types.Mode             `mapstructure:"mode"`
	Collection CollectionConfig       `mapstructure:"collection"`
	Strategies []types.StrategyConfig `mapstructure:"strategies"`
	Exits      ExitConfig             `mapstructure:"exits"`
	Bankroll   BankrollConfig         `mapstructure:"bankroll"`
	Venue      VenueConfig            `mapstructure:"venue"`
	Store      StoreConfig            `mapstructure:"store"`
	Logging    LoggingConfig          `mapstructure:"logging"`

	// Credentials — normally supplied via environment overrides, never
	// committed to the YAML file.
	PolyPrivateKey string `mapstructure:"poly_private_key"`
	PolyAPIKey     string `mapstructure:"poly_api_key"`
	PolyAPISecret  string `mapstructure:"poly_api_secret"`
	PolyPassphrase string `mapstructure:"poly_passphrase"`
}

// CollectionConfig controls MarketDiscovery + QuoteFeed cadence.
type CollectionConfig struct {
	PollIntervalSeconds int      `mapstructure:"pollInterval"`
	Assets              []string `mapstructure:"assets"`
	MarketType          string   `mapstructure:"marketType"`
}

func (c CollectionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ExitConfig tunes the exit state machine. TimeStopThreshold parses but
// is never evaluated: the time-stop exit rule is retired, and only the
// resolution-deadline exit remains active.
type ExitConfig struct {
	ResolutionExitThresholdSeconds int `mapstructure:"resolutionExitThreshold"`
	TimeStopThresholdSeconds       int `mapstructure:"timeStopThreshold"`
}

func (c ExitConfig) ResolutionExitThreshold() time.Duration {
	return time.Duration(c.ResolutionExitThresholdSeconds) * time.Second
}

// BankrollConfig tunes the Sizer and the profit-protection Vault.
type BankrollConfig struct {
	Initial       float64     `mapstructure:"initial"`
	SizingMethod  string      `mapstructure:"sizingMethod"`
	KellyFraction float64     `mapstructure:"kellyFraction"`
	MinBetPct     float64     `mapstructure:"minBetPct"`
	MaxBetPct     float64     `mapstructure:"maxBetPct"`
	FixedStake    float64     `mapstructure:"fixedStake"`
	Vault         VaultConfig `mapstructure:"vault"`
	Risk          RiskConfig  `mapstructure:"risk"`
}

// VaultConfig tunes the supplemental profit-protection bankroll.
type VaultConfig struct {
	Enabled                    bool    `mapstructure:"enabled"`
	DepositRate                float64 `mapstructure:"depositRate"`
	EmergencyWithdrawThreshold float64 `mapstructure:"emergencyWithdrawThreshold"`
	SnapshotPath               string  `mapstructure:"snapshotPath"`
}

// RiskConfig tunes cooldowns and the rolling spend window.
type RiskConfig struct {
	CooldownMinutes      int     `mapstructure:"cooldownMinutes"`
	SpendWindowMinutes   int     `mapstructure:"spendWindowMinutes"`
	SpendCap             float64 `mapstructure:"spendCap"`
	MaxConsecutiveLosses int     `mapstructure:"maxConsecutiveLosses"`
}

func (c RiskConfig) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

func (c RiskConfig) SpendWindowDuration() time.Duration {
	return time.Duration(c.SpendWindowMinutes) * time.Minute
}

// VenueConfig holds the HTTP endpoints used by MarketDiscovery/QuoteFeed
// and the live OrderExecutor.
type VenueConfig struct {
	GammaBaseURL string `mapstructure:"gammaBaseUrl"`
	CLOBBaseURL  string `mapstructure:"clobBaseUrl"`
	WSMarketURL  string `mapstructure:"wsMarketUrl"`
	ChainID      int    `mapstructure:"chainId"`
}

// StoreConfig points at the relational database file.
type StoreConfig struct {
	DatabasePath string `mapstructure:"databasePath"`
}

// LoggingConfig selects slog handler level/format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, applying TRADER_*/POLY_* environment
// overrides for fields that commonly need to differ per-deployment
// (credentials, mode, database path).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive/operational fields from env
	if mode := os.Getenv("TRADER_MODE"); mode != "" {
		cfg.Mode = types.Mode(mode)
	}
	if path := os.Getenv("TRADER_DATABASE_PATH"); path != "" {
		cfg.Store.DatabasePath = path
	}
	if key := os.Getenv("POLY_PRIVATE_KEY"); key != "" {
		cfg.PolyPrivateKey = key
	}
	if key := os.Getenv("POLY_API_KEY"); key != "" {
		cfg.PolyAPIKey = key
	}
	if secret := os.Getenv("POLY_API_SECRET"); secret != "" {
		cfg.PolyAPISecret = secret
	}
	if pass := os.Getenv("POLY_PASSPHRASE"); pass != "" {
		cfg.PolyPassphrase = pass
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "paper")
	v.SetDefault("collection.pollInterval", 5)
	v.SetDefault("collection.assets", []string{"BTC", "ETH", "SOL", "XRP"})
	v.SetDefault("collection.marketType", "15min")
	v.SetDefault("exits.resolutionExitThreshold", 120)
	v.SetDefault("exits.timeStopThreshold", 600)
	v.SetDefault("bankroll.initial", 100.0)
	v.SetDefault("bankroll.sizingMethod", "kelly")
	v.SetDefault("bankroll.kellyFraction", 0.5)
	v.SetDefault("bankroll.minBetPct", 0.03)
	v.SetDefault("bankroll.maxBetPct", 0.15)
	v.SetDefault("bankroll.vault.enabled", true)
	v.SetDefault("bankroll.vault.depositRate", 0.20)
	v.SetDefault("bankroll.vault.emergencyWithdrawThreshold", 0.20)
	v.SetDefault("bankroll.vault.snapshotPath", "vault_state.json")
	v.SetDefault("bankroll.risk.cooldownMinutes", 15)
	v.SetDefault("bankroll.risk.spendWindowMinutes", 15)
	v.SetDefault("bankroll.risk.spendCap", 5.0)
	v.SetDefault("bankroll.risk.maxConsecutiveLosses", 5)
	v.SetDefault("venue.gammaBaseUrl", "https://gamma-api.polymarket.com")
	v.SetDefault("venue.clobBaseUrl", "https://clob.polymarket.com")
	v.SetDefault("venue.wsMarketUrl", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("venue.chainId", 137)
	v.SetDefault("store.databasePath", "trader.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks required fields and numeric ranges, failing fast on
// startup rather than deep into a run.
func (c *Config) Validate() error {
	switch c.Mode {
	case types.ModePaper, types.ModeLive, types.ModeTestnet:
	default:
		return fmt.Errorf("config: invalid mode %q", c.Mode)
	}

	if c.Collection.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: collection.pollInterval must be > 0")
	}
	if len(c.Collection.Assets) == 0 {
		return fmt.Errorf("config: collection.assets must not be empty")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("config: strategies must not be empty")
	}
	for _, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("config: strategy missing id")
		}
		if s.EntryThreshold <= 0 || s.EntryThreshold >= 1 {
			return fmt.Errorf("config: strategy %s entry threshold out of (0,1)", s.ID)
		}
		if s.ExitThreshold <= 0 || s.ExitThreshold >= 1 {
			return fmt.Errorf("config: strategy %s exit threshold out of (0,1)", s.ID)
		}
		switch s.Direction {
		case types.DirectionNormal:
			if s.ExitThreshold <= s.EntryThreshold {
				return fmt.Errorf("config: strategy %s normal direction requires exit > entry", s.ID)
			}
		case types.DirectionFade:
			if s.ExitThreshold >= s.EntryThreshold {
				return fmt.Errorf("config: strategy %s fade direction requires exit < entry", s.ID)
			}
		default:
			return fmt.Errorf("config: strategy %s has invalid direction %q", s.ID, s.Direction)
		}
	}

	if c.Bankroll.Initial <= 0 {
		return fmt.Errorf("config: bankroll.initial must be > 0")
	}
	if c.Bankroll.KellyFraction <= 0 || c.Bankroll.KellyFraction > 1 {
		return fmt.Errorf("config: bankroll.kellyFraction must be in (0,1]")
	}
	if c.Bankroll.MinBetPct <= 0 || c.Bankroll.MaxBetPct <= c.Bankroll.MinBetPct {
		return fmt.Errorf("config: bankroll min/max bet pct misconfigured")
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("config: store.databasePath is required")
	}
	if c.Venue.GammaBaseURL == "" || c.Venue.CLOBBaseURL == "" {
		return fmt.Errorf("config: venue.gammaBaseUrl and venue.clobBaseUrl are required")
	}

	if c.Mode == types.ModeLive {
		if c.PolyPrivateKey == "" {
			return fmt.Errorf("config: live mode requires poly_private_key (POLY_PRIVATE_KEY)")
		}
		if c.PolyAPIKey == "" || c.PolyAPISecret == "" || c.PolyPassphrase == "" {
			return fmt.Errorf("config: live mode requires API credentials")
		}
	}

	return nil
}
