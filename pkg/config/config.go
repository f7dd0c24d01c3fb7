package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/guildgate/guildgate/pkg/models"
)

// Config holds all guildgate configuration.
type Config struct {
	StorePath  string             `yaml:"store_path"`
	Audit      AuditConfig        `yaml:"audit"`
	RateLimits RateLimitDefaults  `yaml:"rate_limits"`
	Governance GovernanceDefaults `yaml:"governance"`
	Cache      CacheConfig        `yaml:"cache"`
	Autosearch AutosearchConfig   `yaml:"autosearch"`
	Executor   ExecutorConfig     `yaml:"executor"`
}

// RateLimitDefaults are the global rate-limit caps; guilds may override them
// field by field in their stored record.
type RateLimitDefaults struct {
	CooldownSec         int            `yaml:"cooldown_sec"`
	PerUserPerMin       int            `yaml:"per_user_per_min"`
	PerChannelPerMin    int            `yaml:"per_channel_per_min"`
	ToolsPerUserPerMin  int            `yaml:"tools_per_user_per_min"`
	ToolsPerGuildPerMin int            `yaml:"tools_per_guild_per_min"`
	ToolCooldowns       map[string]int `yaml:"tool_cooldowns"`
	PerUserDailyTokens  int64          `yaml:"per_user_daily_tokens"`
}

// GovernanceDefaults carry the global budget and model policy that guild
// overrides merge against.
type GovernanceDefaults struct {
	Budget BudgetDefaults      `yaml:"budget"`
	Models models.ModelPolicy  `yaml:"models"`
	Bypass models.BypassPolicy `yaml:"bypass"`
}

// BudgetDefaults is the global daily budget policy.
type BudgetDefaults struct {
	Unit        string             `yaml:"unit"`
	DailyTokens int64              `yaml:"daily_tokens"`
	DailyUSD    float64            `yaml:"daily_usd"`
	Thresholds  models.Thresholds  `yaml:"thresholds"`
	Reset       models.ResetPolicy `yaml:"reset"`
}

// Policy converts the defaults into an effective BudgetPolicy.
func (b BudgetDefaults) Policy() models.BudgetPolicy {
	return models.BudgetPolicy{
		Unit:        b.Unit,
		DailyTokens: b.DailyTokens,
		DailyUSD:    b.DailyUSD,
		Thresholds:  b.Thresholds,
		Reset:       b.Reset,
	}
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLHours   int `yaml:"ttl_hours"`
}

// AutosearchConfig caps autosearch execution output.
type AutosearchConfig struct {
	ScrapeChars int `yaml:"scrape_chars"`
	MaxURLs     int `yaml:"max_urls"`
}

// ExecutorConfig defines the downstream search/scrape provider.
// Provider is "stub" (default) or "http".
type ExecutorConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// AuditConfig controls the SQLite audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		StorePath: "guildgate.json",
		Audit: AuditConfig{
			Enabled:       true,
			DBPath:        "guildgate-audit.db",
			RetentionDays: 30,
		},
		RateLimits: RateLimitDefaults{
			CooldownSec:         10,
			PerUserPerMin:       6,
			PerChannelPerMin:    20,
			ToolsPerUserPerMin:  4,
			ToolsPerGuildPerMin: 30,
		},
		Governance: GovernanceDefaults{
			Budget: BudgetDefaults{
				Unit:       models.UnitTokens,
				Thresholds: models.Thresholds{Warn1: 0.8, Warn2: 0.95},
				Reset:      models.ResetPolicy{Period: "daily", TimeUTC: "00:00"},
			},
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTLHours:   1,
		},
		Autosearch: AutosearchConfig{
			ScrapeChars: 4000,
			MaxURLs:     5,
		},
		Executor: ExecutorConfig{
			Provider: "stub",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
