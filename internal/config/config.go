// Package config loads typed server configuration from a config file,
// environment variables, and built-in defaults. A CLI-supplied config
// path beats everything; see Load for the full priority order.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// StoreBackend selects the C1 Store implementation.
type StoreBackend string

const (
	StoreBackendBolt     StoreBackend = "bolt"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendDynamoDB StoreBackend = "dynamodb"
	StoreBackendRedis    StoreBackend = "redis"
)

// SecretBackend selects the C2 SecretStore implementation.
type SecretBackend string

const (
	SecretBackendPlaintext SecretBackend = "plaintext"
	SecretBackendEnv       SecretBackend = "env"
)

// Config holds all application configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// BaseURL is the externally-visible URL used to build did_url
	// values and the DID identifier's encoded host component.
	BaseURL string `mapstructure:"base_url"`

	DataDir string `mapstructure:"data_dir"`

	LogLevel  string `mapstructure:"log_level"`  // debug | info | warn | error
	LogFormat string `mapstructure:"log_format"` // json | text

	MetricsPath string `mapstructure:"metrics_path"`

	StoreBackend      StoreBackend `mapstructure:"store_backend"`
	DatabaseURL       string       `mapstructure:"database_url"`        // postgres
	RedisURL          string       `mapstructure:"redis_url"`           // redis
	DynamoRegion      string       `mapstructure:"dynamo_region"`       // dynamodb
	DynamoTablePrefix string       `mapstructure:"dynamo_table_prefix"` // dynamodb

	SecretBackend SecretBackend `mapstructure:"secret_backend"`

	AccessTokenExpirySec   int `mapstructure:"access_token_expiry_sec"`
	RefreshTokenExpirySec  int `mapstructure:"refresh_token_expiry_sec"`
	ChallengeTTLSec        int `mapstructure:"challenge_ttl_sec"`
	SessionCleanupInterval int `mapstructure:"session_cleanup_interval_sec"`
	DIDCleanupTTLSec       int `mapstructure:"did_cleanup_ttl_sec"`

	DefaultMaxDIDCount  int   `mapstructure:"default_max_did_count"`
	DefaultMaxTotalSize int64 `mapstructure:"default_max_total_size"`

	MessagingEnabled bool   `mapstructure:"messaging_enabled"`
	MediatorEndpoint string `mapstructure:"mediator_endpoint"`
	ServerDID        string `mapstructure:"server_did"`

	PasskeyRPID     string `mapstructure:"passkey_rp_id"`
	PasskeyRPOrigin string `mapstructure:"passkey_rp_origin"`

	// CORSAllowedOrigins governs the public resolution and management
	// surfaces; "*" matches the teacher's own permissive default.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// Load reads configuration with priority: configPath (if non-empty) >
// environment (WEBVH_ prefixed) > discovered config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8085)
	v.SetDefault("base_url", "http://localhost:8085")
	v.SetDefault("data_dir", "data/webvh-server")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("store_backend", string(StoreBackendBolt))
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("dynamo_region", "")
	v.SetDefault("dynamo_table_prefix", "webvh_")
	v.SetDefault("secret_backend", string(SecretBackendPlaintext))
	v.SetDefault("access_token_expiry_sec", 900)
	v.SetDefault("refresh_token_expiry_sec", 86400)
	v.SetDefault("challenge_ttl_sec", 300)
	v.SetDefault("session_cleanup_interval_sec", 600)
	v.SetDefault("did_cleanup_ttl_sec", 86400)
	v.SetDefault("default_max_did_count", 100)
	v.SetDefault("default_max_total_size", 50*1024*1024)
	v.SetDefault("messaging_enabled", false)
	v.SetDefault("mediator_endpoint", "")
	v.SetDefault("server_did", "")
	v.SetDefault("passkey_rp_id", "localhost")
	v.SetDefault("passkey_rp_origin", "http://localhost:8085")
	v.SetDefault("cors_allowed_origins", []string{"*"})

	v.SetEnvPrefix("WEBVH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("webvh-server")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/webvh-server/")
		v.AddConfigPath("$HOME/.webvh-server")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file found; proceed with env vars and defaults.
	}

	// Values from an explicitly named file are re-applied as overrides,
	// which viper ranks above environment variables.
	if configPath != "" {
		fv := viper.New()
		fv.SetConfigFile(configPath)
		if err := fv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		for _, key := range fv.AllKeys() {
			v.Set(key, fv.Get(key))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ListenAddr returns the host:port pair the HTTP worker binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
