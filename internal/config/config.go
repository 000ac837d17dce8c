// Package config loads engine configuration from environment variables
// (.env file) and, once the config database is available, from a settings
// table that takes precedence — the same two-stage loading order the rest
// of this codebase's ambient stack uses for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sentineltrading/execution-core/internal/domain"
)

// TradingHours is an engine-local wall-clock window.
type TradingHours struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

// ProviderConfig holds API credentials for one market-data vendor.
type ProviderConfig struct {
	PolygonKey    string
	TwelveDataKey string
}

// Config holds engine-wide configuration.
type Config struct {
	DataDir  string
	Port     int
	LogLevel string
	DevMode  bool

	Mode                 domain.SchedulerMode
	AutoExecute          bool
	DailyLossLimit       decimal.Decimal
	TargetDailyProfit    decimal.Decimal
	MaxPositions         int
	MaxPositionSize      decimal.Decimal
	RiskPerTrade         decimal.Decimal
	FeeBps               int32
	PlatformFeePct       decimal.Decimal
	DefaultStopLossPct   decimal.Decimal
	DefaultTakeProfitPct decimal.Decimal
	TradingHours         TradingHours
	Providers            ProviderConfig
	SchedulerWorkerCount int
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}

// Load reads configuration from environment variables (and .env, if
// present). Settings-database overrides are applied later via
// UpdateFromSettings, once the config database has booted.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("ENGINE_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("ENGINE_PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Mode:                 domain.SchedulerMode(getEnv("ENGINE_MODE", string(domain.ModeBalanced))),
		AutoExecute:          getEnvAsBool("AUTO_EXECUTE", true),
		DailyLossLimit:       getEnvAsDecimal("DAILY_LOSS_LIMIT", decimal.NewFromInt(500)),
		TargetDailyProfit:    getEnvAsDecimal("TARGET_DAILY_PROFIT", decimal.Zero),
		MaxPositions:         getEnvAsInt("MAX_POSITIONS", 10),
		MaxPositionSize:      getEnvAsDecimal("MAX_POSITION_SIZE", decimal.NewFromInt(10000)),
		RiskPerTrade:         getEnvAsDecimal("RISK_PER_TRADE", decimal.NewFromFloat(0.01)),
		FeeBps:               int32(getEnvAsInt("FEE_BPS", 10)),
		PlatformFeePct:       getEnvAsDecimal("PLATFORM_FEE_PCT", decimal.NewFromFloat(0.10)),
		DefaultStopLossPct:   getEnvAsDecimal("DEFAULT_STOP_LOSS_PCT", decimal.NewFromFloat(0.02)),
		DefaultTakeProfitPct: getEnvAsDecimal("DEFAULT_TAKE_PROFIT_PCT", decimal.NewFromFloat(0.03)),
		SchedulerWorkerCount: getEnvAsInt("SCHEDULER_WORKERS", 0), // 0 => scheduler defaults to NumCPU*2
		TradingHours: TradingHours{
			Start: getEnv("TRADING_HOURS_START", "14:30"),
			End:   getEnv("TRADING_HOURS_END", "21:00"),
		},
		Providers: ProviderConfig{
			PolygonKey:    getEnv("POLYGON_API_KEY", ""),
			TwelveDataKey: getEnv("TWELVEDATA_API_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SettingsStore is the minimal interface config needs from the settings
// table (internal/config depends on the interface, not the database
// package, to avoid an import cycle).
type SettingsStore interface {
	Get(key string) (*string, error)
}

// UpdateFromSettings overrides provider credentials from the settings
// database when present; empty settings values keep the environment
// variable fallback.
func (c *Config) UpdateFromSettings(store SettingsStore) error {
	if store == nil {
		return nil
	}
	if v, err := store.Get("polygon_api_key"); err != nil {
		return fmt.Errorf("read polygon_api_key setting: %w", err)
	} else if v != nil && *v != "" {
		c.Providers.PolygonKey = *v
	}
	if v, err := store.Get("twelvedata_api_key"); err != nil {
		return fmt.Errorf("read twelvedata_api_key setting: %w", err)
	} else if v != nil && *v != "" {
		c.Providers.TwelveDataKey = *v
	}
	return nil
}

// Validate checks invariants on the loaded configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case domain.ModeAggressive, domain.ModeBalanced, domain.ModeConservative:
	default:
		return fmt.Errorf("invalid scheduler mode %q", c.Mode)
	}
	if c.RiskPerTrade.IsNegative() || c.RiskPerTrade.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("riskPerTrade must be in [0,1], got %s", c.RiskPerTrade)
	}
	return nil
}

// CyclePeriod is a convenience wrapper over the configured mode's cadence.
func (c *Config) CyclePeriod() time.Duration {
	return c.Mode.CyclePeriod()
}
