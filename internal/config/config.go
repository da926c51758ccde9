// Package config loads taskbot configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// Config holds the complete taskbot configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Oracle        OracleConfig        `koanf:"oracle"`
	Cache         CacheConfig         `koanf:"cache"`
	Session       SessionConfig       `koanf:"session"`
	NATS          NATSConfig          `koanf:"nats"`
	Destinations  DestinationsConfig  `koanf:"destinations"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	// Vocabulary overrides the built-in extraction term lists when set.
	Vocabulary *extraction.Vocabulary `koanf:"vocabulary"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry export configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	ServiceName     string  `koanf:"service_name"`
	Insecure        bool    `koanf:"insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// LoggingConfig selects log level, format and outputs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// Oracle providers.
const (
	OracleOpenAI    = "openai"
	OracleAnthropic = "anthropic"
	OracleStatic    = "static"
)

// OracleConfig configures the text-understanding backend.
type OracleConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Timeout     Duration `koanf:"timeout"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	// RequestsPerMinute caps oracle calls across all users. Zero disables.
	RequestsPerMinute int `koanf:"requests_per_minute"`
	// StaticResponse is the file served by the static provider.
	StaticResponse string `koanf:"static_response"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig configures the analysis cache.
type CacheConfig struct {
	Backend       string `koanf:"backend"`
	MaxEntries    int    `koanf:"max_entries"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword Secret `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// SessionConfig bounds session lifetime.
type SessionConfig struct {
	MaxSessions   int      `koanf:"max_sessions"`
	IdleTimeout   Duration `koanf:"idle_timeout"`
	SweepInterval Duration `koanf:"sweep_interval"`
	PreferenceTTL Duration `koanf:"preference_ttl"`
}

// NATSConfig configures the NATS connection and feed.
type NATSConfig struct {
	URL            string   `koanf:"url"`
	FeedEnabled    bool     `koanf:"feed_enabled"`
	QueueGroup     string   `koanf:"queue_group"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// Destination providers and committers.
const (
	DestinationsFile = "file"
	DestinationsNATS = "nats"
	DestinationsLog  = "log"
)

// DestinationsConfig selects where snapshots come from and where tasks go.
type DestinationsConfig struct {
	Provider  string `koanf:"provider"`
	Path      string `koanf:"path"`
	Watch     bool   `koanf:"watch"`
	Committer string `koanf:"committer"`
}

// SecretsConfig controls transcript scrubbing, which is on unless disabled.
type SecretsConfig struct {
	Disabled  bool     `koanf:"disabled"`
	AllowList []string `koanf:"allow_list"`
	// LocalRulesOnly skips the gitleaks ruleset.
	LocalRulesOnly bool `koanf:"local_rules_only"`
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("service name required when telemetry is enabled"))
	}

	if !slices.Contains([]string{OracleOpenAI, OracleAnthropic, OracleStatic}, c.Oracle.Provider) {
		errs = append(errs, fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider))
	}
	if c.Oracle.Provider != OracleStatic && !c.Oracle.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("oracle.api_key is required for provider %q", c.Oracle.Provider))
	}
	if c.Oracle.Provider == OracleStatic && c.Oracle.StaticResponse == "" {
		errs = append(errs, errors.New("oracle.static_response is required for the static provider"))
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		errs = append(errs, fmt.Errorf("oracle.temperature must be between 0 and 2, got %g", c.Oracle.Temperature))
	}
	if c.Oracle.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("oracle.requests_per_minute cannot be negative"))
	}

	switch c.Cache.Backend {
	case CacheMemory:
		if c.Cache.MaxEntries <= 0 {
			errs = append(errs, errors.New("cache.max_entries must be positive"))
		}
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}

	if c.Session.MaxSessions < 0 {
		errs = append(errs, errors.New("session.max_sessions cannot be negative"))
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.idle_timeout and session.sweep_interval must be positive"))
	}

	switch c.Destinations.Provider {
	case DestinationsFile:
		if c.Destinations.Path == "" {
			errs = append(errs, errors.New("destinations.path is required for the file provider"))
		}
	case DestinationsNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown destinations provider %q", c.Destinations.Provider))
	}
	if c.Destinations.Committer != DestinationsLog && c.Destinations.Committer != DestinationsNATS {
		errs = append(errs, fmt.Errorf("unknown destinations committer %q", c.Destinations.Committer))
	}
	if c.needsNATS() && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required by the configured feed, provider or committer"))
	}

	if c.Vocabulary != nil {
		if err := c.Vocabulary.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("vocabulary: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) needsNATS() bool {
	return c.NATS.FeedEnabled ||
		c.Destinations.Provider == DestinationsNATS ||
		c.Destinations.Committer == DestinationsNATS
}
