// Package config provides unified configuration for the weft web surface.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WEFT_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// A loaded Config is treated as immutable for the lifetime of the surface.
package config

import "time"

// Config holds all configuration for the web surface.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	HTTPS         HTTPSConfig         `yaml:"https"`
	Socket        SocketConfig        `yaml:"socket"`
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// HTTPConfig holds plain HTTP listener settings.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
	Port    int  `yaml:"port"`    // default: $PORT, then 8080
}

// HTTPSConfig holds TLS listener settings.
type HTTPSConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Port    int    `yaml:"port"`    // default: 443
	SSLKey  string `yaml:"sslKey"`  // default: ./certs/client.key
	SSLCert string `yaml:"sslCert"` // default: ./certs/client.crt
}

// SocketConfig holds bidirectional channel settings. The channel rides on
// the HTTPS listener when it is enabled, otherwise on the HTTP listener.
type SocketConfig struct {
	Enabled         bool     `yaml:"enabled"`           // default: false
	Path            string   `yaml:"path"`              // default: /socket
	Origins         []string `yaml:"origins"`           // allowed Origin hosts; empty means same host only
	MaxMessageBytes int64    `yaml:"max_message_bytes"` // default: 1 MiB
}

// ServerConfig holds settings shared by the HTTP and HTTPS listeners.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: all interfaces
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MiB
}

// AuthConfig holds identification settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey", "jwt", "session"; default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT bearer token settings for type=jwt.
type JWTConfig struct {
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	JWKSURL       string        `yaml:"jwks_url"`
	UserClaim     string        `yaml:"user_claim"`
	TenantClaim   string        `yaml:"tenant_claim"`
	TierClaim     string        `yaml:"tier_claim"`
	ScopesClaim   string        `yaml:"scopes_claim"`
	LoggedInClaim string        `yaml:"logged_in_claim"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig holds per-tier budgets for identified callers. HTTP(S)
// requests and channel frames are budgeted separately.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`     // default: false
	DefaultRPM int            `yaml:"default_rpm"` // default: 600
	Tiers      map[string]int `yaml:"tiers"`       // tier name -> requests per minute
	DefaultFPM int            `yaml:"default_fpm"` // frames per minute; 0 uses the request budget, <0 unlimited
	FrameTiers map[string]int `yaml:"frame_tiers"` // tier name -> frames per minute
}

// SessionConfig holds session store settings. The store backs the session
// authenticator (auth.type=session).
type SessionConfig struct {
	Store    string         `yaml:"store"`    // "memory" or "postgres", default: "memory"
	Cookie   string         `yaml:"cookie"`   // default: weft_sid
	TTL      time.Duration  `yaml:"ttl"`      // default: 24h
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LogConfig holds log level and debug category settings. WEFT_LOG_LEVEL
// and WEFT_DEBUG take precedence at runtime.
type LogConfig struct {
	Level string `yaml:"level"` // default: "INFO"
	Debug string `yaml:"debug"` // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Enabled: true,
		},
		HTTPS: HTTPSConfig{
			Port:    443,
			SSLKey:  "./certs/client.key",
			SSLCert: "./certs/client.crt",
		},
		Socket: SocketConfig{
			Path:            "/socket",
			MaxMessageBytes: 1 << 20,
		},
		Server: ServerConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodySize:     10 << 20,
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				DefaultRPM: 600,
			},
		},
		Session: SessionConfig{
			Store:   "memory",
			Cookie:  "weft_sid",
			TTL:     24 * time.Hour,
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}
