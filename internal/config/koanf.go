// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gomuseum/config.yaml",
	"/etc/gomuseum/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			MaxImageBytes:   10 << 20, // 10MB upload ceiling
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Cache: CacheConfig{
			Tier1: Tier1Config{
				MaxEntries:       10000,
				MaxBytes:         256 << 20, // 256MB
				BaseTTL:          time.Hour,
				MaxTTL:           24 * time.Hour,
				SweepInterval:    time.Minute,
				EvictionFraction: 0.2,
				PopularBoost:     2.0,
			},
			Tier2: Tier2Config{
				Backend:      "none",
				RedisURL:     "redis://127.0.0.1:6379/0",
				BadgerPath:   "/data/cache",
				TTL:          7 * 24 * time.Hour,
				MaxTTL:       30 * 24 * time.Hour,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
			},
		},
		Models: nil, // populated from config file
		Selector: SelectorConfig{
			DefaultStrategy: "balanced",
			AccuracyWeight:  0.4,
			CostWeight:      0.3,
			SpeedWeight:     0.3,
		},
		Fallback: FallbackConfig{
			TotalBudget:      5 * time.Second,
			MinSubDeadline:   500 * time.Millisecond,
			SafetyFactor:     2.0,
			MaxAttempts:      3,
			MaxConcurrent:    64,
			RetryAttempts:    0, // no in-attempt retries by default
			RetryBaseDelay:   100 * time.Millisecond,
			ProviderRPS:      0, // 0 = no outbound pacing
			ProviderBurst:    1,
			BreakerThreshold: 0.6,
			BreakerMinReqs:   10,
			BreakerCooldown:  30 * time.Second,
		},
		Stats: StatsConfig{
			WindowSize:          20,
			FailureThreshold:    0.5,
			Cooldown:            60 * time.Second,
			EWMAAlpha:           0.2,
			PopularityThreshold: 0.9,
		},
		Quota: QuotaConfig{
			Enabled:      false,
			FreePerMonth: 10,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any scalar setting
//
// Precedence: ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// GATEWAY_REDIS_URL -> cache.tier2.redis_url, HTTP_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when supplied via env vars.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from the YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise never
// pollutes the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// API mappings
		"api_max_image_bytes": "api.max_image_bytes",
		"rate_limit_requests": "api.rate_limit_reqs",
		"rate_limit_window":   "api.rate_limit_window",
		"cors_origins":        "api.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Cache tier 1 mappings
		"cache_max_entries":       "cache.tier1.max_entries",
		"cache_max_bytes":         "cache.tier1.max_bytes",
		"cache_base_ttl":          "cache.tier1.base_ttl",
		"cache_max_ttl":           "cache.tier1.max_ttl",
		"cache_sweep_interval":    "cache.tier1.sweep_interval",
		"cache_eviction_fraction": "cache.tier1.eviction_fraction",
		"cache_popular_boost":     "cache.tier1.popular_boost",

		// Cache tier 2 mappings
		"cache_backend":             "cache.tier2.backend",
		"gateway_redis_url":         "cache.tier2.redis_url",
		"gateway_badger_path":       "cache.tier2.badger_path",
		"cache_tier2_ttl":           "cache.tier2.ttl",
		"cache_tier2_max_ttl":       "cache.tier2.max_ttl",
		"cache_tier2_dial_timeout":  "cache.tier2.dial_timeout",
		"cache_tier2_read_timeout":  "cache.tier2.read_timeout",
		"cache_tier2_write_timeout": "cache.tier2.write_timeout",

		// Selector mappings
		"selector_default_strategy": "selector.default_strategy",
		"selector_accuracy_weight":  "selector.accuracy_weight",
		"selector_cost_weight":      "selector.cost_weight",
		"selector_speed_weight":     "selector.speed_weight",

		// Fallback mappings
		"fallback_total_budget":      "fallback.total_budget",
		"fallback_min_sub_deadline":  "fallback.min_sub_deadline",
		"fallback_safety_factor":     "fallback.safety_factor",
		"fallback_max_attempts":      "fallback.max_attempts",
		"fallback_max_concurrent":    "fallback.max_concurrent",
		"fallback_retry_attempts":    "fallback.retry_attempts",
		"fallback_retry_base_delay":  "fallback.retry_base_delay",
		"fallback_provider_rps":      "fallback.provider_rps",
		"fallback_provider_burst":    "fallback.provider_burst",
		"fallback_breaker_threshold": "fallback.breaker_threshold",
		"fallback_breaker_min_reqs":  "fallback.breaker_min_reqs",
		"fallback_breaker_cooldown":  "fallback.breaker_cooldown",

		// Stats mappings
		"stats_window_size":          "stats.window_size",
		"stats_failure_threshold":    "stats.failure_threshold",
		"stats_cooldown":             "stats.cooldown",
		"stats_ewma_alpha":           "stats.ewma_alpha",
		"stats_popularity_threshold": "stats.popularity_threshold",

		// Quota mappings
		"quota_enabled":        "quota.enabled",
		"quota_free_per_month": "quota.free_per_month",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
