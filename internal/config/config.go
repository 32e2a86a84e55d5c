// Package config holds application settings, loaded from a JSON file
// with environment-variable overrides, and watches the file for changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"stock-advisors/internal/ratelimit"
)

// Rate limit tiers of the market data provider.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

type Config struct {
	DataDir string `json:"data_dir"`
	DBPath  string `json:"db_path"`

	StartingCapital float64 `json:"starting_capital"`
	MaxPositionPct  float64 `json:"max_position_pct"`

	RateLimitTier string `json:"rate_limit_tier"`
	BaseURL       string `json:"base_url"`

	MonitorIntervalSec   int  `json:"monitor_interval_sec"`
	NotificationsEnabled bool `json:"notifications_enabled"`
	Debug                bool `json:"debug"`

	// API keys come from the environment, never from the config file.
	APIKey string `json:"-"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(filepath.Join(currentDir, "data"))
}

func DefaultConfigWithRoot(dataDir string) *Config {
	cfg := &Config{
		DataDir:              dataDir,
		DBPath:               filepath.Join(dataDir, "advisor.db"),
		StartingCapital:      100000,
		MaxPositionPct:       0.10,
		RateLimitTier:        TierFree,
		MonitorIntervalSec:   300,
		NotificationsEnabled: true,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("ADVISOR_DATA_DIR"); val != "" {
		c.DataDir = val
		c.DBPath = filepath.Join(val, "advisor.db")
	}
	if val := os.Getenv("ADVISOR_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("ADVISOR_STARTING_CAPITAL"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.StartingCapital = v
		}
	}
	if val := os.Getenv("ADVISOR_MAX_POSITION_PCT"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.MaxPositionPct = v
		}
	}
	if val := os.Getenv("ADVISOR_RATE_LIMIT_TIER"); val != "" {
		c.RateLimitTier = val
	}
	if val := os.Getenv("ADVISOR_BASE_URL"); val != "" {
		c.BaseURL = val
	}
	if val := os.Getenv("ADVISOR_MONITOR_INTERVAL_SEC"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MonitorIntervalSec = v
		}
	}
	if val := os.Getenv("ADVISOR_NOTIFICATIONS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.NotificationsEnabled = enabled
		}
	}
	if val := os.Getenv("ADVISOR_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("ALPHAVANTAGE_API_KEY"); val != "" {
		c.APIKey = val
	}
}

func (c *Config) Validate() error {
	if c.StartingCapital <= 0 {
		return fmt.Errorf("starting capital must be positive, got %v", c.StartingCapital)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("max position pct must be in (0, 1], got %v", c.MaxPositionPct)
	}
	switch c.RateLimitTier {
	case TierFree, TierPremium:
	default:
		return fmt.Errorf("unknown rate limit tier %q", c.RateLimitTier)
	}
	if c.MonitorIntervalSec < 0 {
		return fmt.Errorf("monitor interval must not be negative, got %d", c.MonitorIntervalSec)
	}
	return nil
}

// Limiter builds the request limiter for the configured provider tier.
// The free tier allows 25 calls per day; premium allows 75 per minute.
func (c *Config) Limiter() *ratelimit.Limiter {
	if c.RateLimitTier == TierPremium {
		return ratelimit.PerMinute(75)
	}
	return ratelimit.PerDay(25)
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
