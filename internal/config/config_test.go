package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := &Config{
		Oracle:       OracleConfig{APIKey: "sk-test"},
		Destinations: DestinationsConfig{Path: "/etc/taskbot/destinations.yaml"},
	}
	applyDefaults(cfg)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing api key", func(c *Config) { c.Oracle.APIKey = "" }, "api_key is required"},
		{"static needs file", func(c *Config) {
			c.Oracle.Provider = OracleStatic
			c.Oracle.APIKey = ""
		}, "static_response"},
		{"redis needs addr", func(c *Config) { c.Cache.Backend = CacheRedis }, "redis_addr"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, "unknown cache backend"},
		{"file needs path", func(c *Config) { c.Destinations.Path = "" }, "destinations.path"},
		{"nats committer needs url", func(c *Config) { c.Destinations.Committer = DestinationsNATS }, "nats.url"},
		{"nats feed with url", func(c *Config) {
			c.NATS.FeedEnabled = true
			c.NATS.URL = "nats://localhost:4222"
		}, ""},
		{"negative rpm", func(c *Config) { c.Oracle.RequestsPerMinute = -1 }, "requests_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	assert.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	out, err := d.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}

func TestSecret_NeverLeaks(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprint(s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "very")

	b, err := json.Marshal(struct{ Key Secret }{s})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"Key":"[REDACTED]"}`, string(b))

	assert.Equal(t, "sk-very-secret", s.Value())
	assert.True(t, s.IsSet())
	assert.Empty(t, Secret("").String())
}
