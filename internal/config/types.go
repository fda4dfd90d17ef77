// Package config provides configuration loading for chaingate using Viper.
// Configuration is loaded from YAML files with automatic environment variable
// binding.
//
// Environment variables use the CHAINGATE_ prefix and underscore-separated
// keys:
//   - CHAINGATE_LISTEN_HOST -> listen.host
//   - CHAINGATE_LISTEN_PORT -> listen.port
//   - CHAINGATE_UPSTREAM_ENDPOINTS -> upstream.endpoints (comma-separated)
//   - CHAINGATE_ADMISSION_MAX_CONNECTIONS -> admission.max_connections
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how the dispatch worker count is determined.
type WorkersMode int

const (
	// WorkersAuto means no fixed worker count was given ("auto", empty or
	// unparsable input).
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the dispatch worker pool size configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ListenConfig is the single host:port the gateway binds for both the
// WebSocket upgrade route and the HTTP introspection routes.
type ListenConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// UpstreamConfig describes the pool of JSON-RPC endpoints and the retrying
// caller wrapped around it.
type UpstreamConfig struct {
	Endpoints      []string `yaml:"endpoints"        mapstructure:"endpoints"        json:"endpoints"`
	RequestTimeout string   `yaml:"request_timeout"  mapstructure:"request_timeout"  json:"request_timeout"`
	MaxAttempts    int      `yaml:"max_attempts"     mapstructure:"max_attempts"     json:"max_attempts"`
	BaseDelay      string   `yaml:"base_delay"       mapstructure:"base_delay"       json:"base_delay"`
	RecoveryWindow string   `yaml:"recovery_window"  mapstructure:"recovery_window"  json:"recovery_window"`
}

// CacheConfig configures the TTLs and size bounds of the cache bundle.
type CacheConfig struct {
	HeadTTL    string `yaml:"head_ttl"    mapstructure:"head_ttl"    json:"head_ttl"`
	WitnessTTL string `yaml:"witness_ttl" mapstructure:"witness_ttl" json:"witness_ttl"`
	BlockTTL   string `yaml:"block_ttl"   mapstructure:"block_ttl"   json:"block_ttl"`
	HeadersMax int    `yaml:"headers_max" mapstructure:"headers_max" json:"headers_max"`
	BlocksMax  int    `yaml:"blocks_max"  mapstructure:"blocks_max"  json:"blocks_max"`
	OpsMax     int    `yaml:"ops_max"     mapstructure:"ops_max"     json:"ops_max"`
}

// AdmissionConfig controls the front-end's connection cap, per-session rate
// limit, and bounded work queue.
type AdmissionConfig struct {
	MaxConnections     int `yaml:"max_connections"       mapstructure:"max_connections"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	QueueSize          int `yaml:"queue_size"            mapstructure:"queue_size"`
	WorkerCount        int `yaml:"worker_count"          mapstructure:"worker_count"`
}

// PollConfig controls the change-detection driver and the independent
// health probe.
type PollConfig struct {
	Period            string `yaml:"period"              mapstructure:"period"`
	HealthProbePeriod string `yaml:"health_probe_period" mapstructure:"health_probe_period"`
	SlowThreshold      string `yaml:"slow_threshold"      mapstructure:"slow_threshold"`
}

// CORSConfig lists the origins permitted to reach the HTTP introspection
// routes. An empty list means "allow any origin" (wildcard).
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins" json:"origins,omitempty"`
}

// AuditConfig caps how many of the most recent events /status/events
// returns. The in-memory event log itself is not pruned.
type AuditConfig struct {
	EventLimit int `yaml:"event_limit" mapstructure:"event_limit"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"    mapstructure:"listen"`
	Upstream  UpstreamConfig  `yaml:"upstream"  mapstructure:"upstream"`
	Cache     CacheConfig     `yaml:"cache"     mapstructure:"cache"`
	Admission AdmissionConfig `yaml:"admission" mapstructure:"admission"`
	Poll      PollConfig      `yaml:"poll"      mapstructure:"poll"`
	CORS      CORSConfig      `yaml:"cors"      mapstructure:"cors"`
	Audit     AuditConfig     `yaml:"audit"     mapstructure:"audit"`
	Logging   LoggingConfig   `yaml:"logging"   mapstructure:"logging"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("CHAINGATE_CONFIG")); v != "" {
		return v
	}
	return ""
}
