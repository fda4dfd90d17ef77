// Package config provides configuration loading and validation for
// chaingate.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (CHAINGATE_* prefix)
//  2. YAML config file (if specified with --config / CHAINGATE_CONFIG)
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/jroosing/chaingate/internal/helpers"
)

// initViper sets up the config loader with defaults, env binding, and config file.
func initViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CHAINGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.host", "0.0.0.0")
	v.SetDefault("listen.port", 8765)

	v.SetDefault("upstream.endpoints", []string{"https://api.hive.blog"})
	v.SetDefault("upstream.request_timeout", "10s")
	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.base_delay", "1s")
	v.SetDefault("upstream.recovery_window", "60s")

	v.SetDefault("cache.head_ttl", "3s")
	v.SetDefault("cache.witness_ttl", "60s")
	v.SetDefault("cache.block_ttl", "10m")
	v.SetDefault("cache.headers_max", 2048)
	v.SetDefault("cache.blocks_max", 1024)
	v.SetDefault("cache.ops_max", 1024)

	v.SetDefault("admission.max_connections", 100)
	v.SetDefault("admission.rate_limit_per_minute", 2000)
	v.SetDefault("admission.queue_size", 1000)
	v.SetDefault("admission.worker_count", 32)

	v.SetDefault("poll.period", "3s")
	v.SetDefault("poll.health_probe_period", "30s")
	v.SetDefault("poll.slow_threshold", "2s")

	v.SetDefault("cors.origins", []string{})

	v.SetDefault("audit.event_limit", 500)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})
}

// Load loads configuration from an optional YAML file with environment
// variable and default overlays, then validates the result.
func Load(path string) (*Config, error) {
	v, err := initViper(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadListenConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadAdmissionConfig(v, cfg)
	loadPollConfig(v, cfg)
	loadCORSConfig(v, cfg)
	loadAuditConfig(v, cfg)
	loadLoggingConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadListenConfig(v *viper.Viper, cfg *Config) {
	cfg.Listen.Host = v.GetString("listen.host")
	cfg.Listen.Port = v.GetInt("listen.port")
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	cfg.Upstream.Endpoints = getStringSliceOrSplit(v, "upstream.endpoints")
	cfg.Upstream.RequestTimeout = v.GetString("upstream.request_timeout")
	cfg.Upstream.MaxAttempts = v.GetInt("upstream.max_attempts")
	cfg.Upstream.BaseDelay = v.GetString("upstream.base_delay")
	cfg.Upstream.RecoveryWindow = v.GetString("upstream.recovery_window")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.HeadTTL = v.GetString("cache.head_ttl")
	cfg.Cache.WitnessTTL = v.GetString("cache.witness_ttl")
	cfg.Cache.BlockTTL = v.GetString("cache.block_ttl")
	cfg.Cache.HeadersMax = v.GetInt("cache.headers_max")
	cfg.Cache.BlocksMax = v.GetInt("cache.blocks_max")
	cfg.Cache.OpsMax = v.GetInt("cache.ops_max")
}

func loadAdmissionConfig(v *viper.Viper, cfg *Config) {
	cfg.Admission.MaxConnections = v.GetInt("admission.max_connections")
	cfg.Admission.RateLimitPerMinute = v.GetInt("admission.rate_limit_per_minute")
	cfg.Admission.QueueSize = v.GetInt("admission.queue_size")
	cfg.Admission.WorkerCount = v.GetInt("admission.worker_count")
}

func loadPollConfig(v *viper.Viper, cfg *Config) {
	cfg.Poll.Period = v.GetString("poll.period")
	cfg.Poll.HealthProbePeriod = v.GetString("poll.health_probe_period")
	cfg.Poll.SlowThreshold = v.GetString("poll.slow_threshold")
}

func loadCORSConfig(v *viper.Viper, cfg *Config) {
	cfg.CORS.Origins = getStringSliceOrSplit(v, "cors.origins")
}

func loadAuditConfig(v *viper.Viper, cfg *Config) {
	cfg.Audit.EventLimit = v.GetInt("audit.event_limit")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

// ParseWorkers converts a workers string ("auto" or a positive integer)
// into a WorkerSetting.
func ParseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// getStringSliceOrSplit handles both slice and comma-separated string values,
// since environment variables can only carry the latter.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			for _, p := range strings.Split(s, ",") {
				if p = strings.TrimSpace(p); p != "" {
					result = append(result, p)
				}
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and fills in gaps left after loading.
func normalizeConfig(cfg *Config) error {
	if cfg.Listen.Port <= 0 || cfg.Listen.Port > 65535 {
		return errors.New("listen.port must be between 1 and 65535")
	}

	if len(cfg.Upstream.Endpoints) == 0 {
		return errors.New("upstream.endpoints must name at least one endpoint")
	}
	if cfg.Upstream.MaxAttempts <= 0 {
		cfg.Upstream.MaxAttempts = 3
	}
	cfg.Upstream.MaxAttempts = helpers.ClampInt(cfg.Upstream.MaxAttempts, 1, 10)

	if cfg.Admission.MaxConnections <= 0 {
		cfg.Admission.MaxConnections = 100
	}
	if cfg.Admission.RateLimitPerMinute <= 0 {
		cfg.Admission.RateLimitPerMinute = 2000
	}
	if cfg.Admission.QueueSize <= 0 {
		cfg.Admission.QueueSize = 1000
	}
	// Bound operator-supplied values to a sane range rather than trusting an
	// env var or YAML file blindly - a typo'd "2000000" for the connection
	// cap should degrade to a large-but-survivable limit, not an fd exhaustion.
	cfg.Admission.MaxConnections = helpers.ClampInt(cfg.Admission.MaxConnections, 1, 100000)
	cfg.Admission.RateLimitPerMinute = helpers.ClampInt(cfg.Admission.RateLimitPerMinute, 1, 1_000_000)
	cfg.Admission.QueueSize = helpers.ClampInt(cfg.Admission.QueueSize, 1, 1_000_000)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	return nil
}
