// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

// Package config defines the gateway configuration model and its layered
// loader. Configuration is resolved from three sources in increasing
// priority: built-in defaults, an optional YAML file, and environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the recognition gateway.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
	Cache    CacheConfig    `koanf:"cache"`
	Models   []ModelConfig  `koanf:"models"`
	Selector SelectorConfig `koanf:"selector"`
	Fallback FallbackConfig `koanf:"fallback"`
	Stats    StatsConfig    `koanf:"stats"`
	Quota    QuotaConfig    `koanf:"quota"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// IsProduction reports whether the server runs in production mode.
// Production mode downgrades cache corruption from panic to miss.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

// APIConfig holds API surface settings.
type APIConfig struct {
	MaxImageBytes   int64         `koanf:"max_image_bytes"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// CacheConfig holds the two-tier scoring cache settings.
type CacheConfig struct {
	Tier1 Tier1Config `koanf:"tier1"`
	Tier2 Tier2Config `koanf:"tier2"`
}

// Tier1Config configures the in-process scored cache tier.
type Tier1Config struct {
	MaxEntries       int           `koanf:"max_entries"`
	MaxBytes         int64         `koanf:"max_bytes"`
	BaseTTL          time.Duration `koanf:"base_ttl"`
	MaxTTL           time.Duration `koanf:"max_ttl"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	EvictionFraction float64       `koanf:"eviction_fraction"`
	PopularBoost     float64       `koanf:"popular_boost"`
}

// Tier2Config configures the shared persistent cache tier.
// Backend selects the store implementation: redis, badger, or none.
type Tier2Config struct {
	Backend      string        `koanf:"backend"`
	RedisURL     string        `koanf:"redis_url"`
	BadgerPath   string        `koanf:"badger_path"`
	TTL          time.Duration `koanf:"ttl"`
	MaxTTL       time.Duration `koanf:"max_ttl"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ModelConfig describes one recognition model endpoint.
type ModelConfig struct {
	ID                string        `koanf:"id"`
	Provider          string        `koanf:"provider"`
	Endpoint          string        `koanf:"endpoint"`
	APIKey            string        `koanf:"api_key"`
	CostPerCall       float64       `koanf:"cost_per_call"`
	AccuracyScore     float64       `koanf:"accuracy_score"`
	BaselineLatencyMs int64         `koanf:"baseline_latency_ms"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxImageBytes     int64         `koanf:"max_image_bytes"`
	Enabled           bool          `koanf:"enabled"`
}

// SelectorConfig holds model selection settings.
type SelectorConfig struct {
	DefaultStrategy string  `koanf:"default_strategy"`
	AccuracyWeight  float64 `koanf:"accuracy_weight"`
	CostWeight      float64 `koanf:"cost_weight"`
	SpeedWeight     float64 `koanf:"speed_weight"`
}

// FallbackConfig holds the deadline-bounded orchestration settings.
type FallbackConfig struct {
	TotalBudget      time.Duration `koanf:"total_budget"`
	MinSubDeadline   time.Duration `koanf:"min_sub_deadline"`
	SafetyFactor     float64       `koanf:"safety_factor"`
	MaxAttempts      int           `koanf:"max_attempts"`
	MaxConcurrent    int64         `koanf:"max_concurrent"`
	RetryAttempts    int           `koanf:"retry_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	ProviderRPS      float64       `koanf:"provider_rps"`
	ProviderBurst    int           `koanf:"provider_burst"`
	BreakerThreshold float64       `koanf:"breaker_threshold"`
	BreakerMinReqs   uint32        `koanf:"breaker_min_reqs"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown"`
}

// StatsConfig holds health monitoring settings.
type StatsConfig struct {
	WindowSize          int           `koanf:"window_size"`
	FailureThreshold    float64       `koanf:"failure_threshold"`
	Cooldown            time.Duration `koanf:"cooldown"`
	EWMAAlpha           float64       `koanf:"ewma_alpha"`
	PopularityThreshold float64       `koanf:"popularity_threshold"`
}

// QuotaConfig holds per-user quota settings.
type QuotaConfig struct {
	Enabled      bool `koanf:"enabled"`
	FreePerMonth int  `koanf:"free_per_month"`
}

// Validate checks the configuration for internal consistency. It is called
// by LoadWithKoanf after all layers have been merged.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, "server.timeout must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a valid level", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	if c.Cache.Tier1.MaxEntries <= 0 {
		errs = append(errs, "cache.tier1.max_entries must be positive")
	}
	if c.Cache.Tier1.EvictionFraction <= 0 || c.Cache.Tier1.EvictionFraction >= 1 {
		errs = append(errs, "cache.tier1.eviction_fraction must be in (0, 1)")
	}
	if c.Cache.Tier1.BaseTTL <= 0 {
		errs = append(errs, "cache.tier1.base_ttl must be positive")
	}
	if c.Cache.Tier1.MaxTTL < c.Cache.Tier1.BaseTTL {
		errs = append(errs, "cache.tier1.max_ttl must be >= cache.tier1.base_ttl")
	}

	switch strings.ToLower(c.Cache.Tier2.Backend) {
	case "redis":
		if c.Cache.Tier2.RedisURL == "" {
			errs = append(errs, "cache.tier2.redis_url is required when backend is redis")
		}
	case "badger":
		if c.Cache.Tier2.BadgerPath == "" {
			errs = append(errs, "cache.tier2.badger_path is required when backend is badger")
		}
	case "none", "":
	default:
		errs = append(errs, fmt.Sprintf("cache.tier2.backend %q must be redis, badger, or none", c.Cache.Tier2.Backend))
	}
	if c.Cache.Tier2.MaxTTL < c.Cache.Tier2.TTL {
		errs = append(errs, "cache.tier2.max_ttl must be >= cache.tier2.ttl")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("models[%d].id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("models[%d].id %q is duplicated", i, m.ID))
		}
		seen[m.ID] = true
		if m.Provider == "" {
			errs = append(errs, fmt.Sprintf("models[%d].provider is required", i))
		}
		if m.CostPerCall < 0 {
			errs = append(errs, fmt.Sprintf("models[%d].cost_per_call must be >= 0", i))
		}
		if m.AccuracyScore < 0 || m.AccuracyScore > 1 {
			errs = append(errs, fmt.Sprintf("models[%d].accuracy_score must be in [0, 1]", i))
		}
		if m.BaselineLatencyMs <= 0 {
			errs = append(errs, fmt.Sprintf("models[%d].baseline_latency_ms must be positive", i))
		}
	}

	switch strings.ToLower(c.Selector.DefaultStrategy) {
	case "cost", "accuracy", "speed", "balanced":
	default:
		errs = append(errs, fmt.Sprintf("selector.default_strategy %q is not a valid strategy", c.Selector.DefaultStrategy))
	}
	weightSum := c.Selector.AccuracyWeight + c.Selector.CostWeight + c.Selector.SpeedWeight
	if weightSum <= 0 {
		errs = append(errs, "selector weights must sum to a positive value")
	}

	if c.Fallback.TotalBudget <= 0 {
		errs = append(errs, "fallback.total_budget must be positive")
	}
	if c.Fallback.MinSubDeadline <= 0 || c.Fallback.MinSubDeadline > c.Fallback.TotalBudget {
		errs = append(errs, "fallback.min_sub_deadline must be positive and <= total_budget")
	}
	if c.Fallback.SafetyFactor < 1 {
		errs = append(errs, "fallback.safety_factor must be >= 1")
	}
	if c.Fallback.MaxConcurrent <= 0 {
		errs = append(errs, "fallback.max_concurrent must be positive")
	}
	if c.Fallback.BreakerThreshold <= 0 || c.Fallback.BreakerThreshold > 1 {
		errs = append(errs, "fallback.breaker_threshold must be in (0, 1]")
	}
	if c.Fallback.ProviderRPS < 0 {
		errs = append(errs, "fallback.provider_rps must be >= 0")
	}

	if c.Stats.WindowSize <= 0 {
		errs = append(errs, "stats.window_size must be positive")
	}
	if c.Stats.FailureThreshold <= 0 || c.Stats.FailureThreshold > 1 {
		errs = append(errs, "stats.failure_threshold must be in (0, 1]")
	}
	if c.Stats.EWMAAlpha <= 0 || c.Stats.EWMAAlpha >= 1 {
		errs = append(errs, "stats.ewma_alpha must be in (0, 1)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
