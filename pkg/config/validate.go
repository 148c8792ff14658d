package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// http.port 0 means "use $PORT, then 8080".
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port))
	}

	if c.HTTPS.Enabled {
		if c.HTTPS.Port <= 0 || c.HTTPS.Port > 65535 {
			errs = append(errs, fmt.Errorf("https.port must be between 1 and 65535, got %d", c.HTTPS.Port))
		}
		if c.HTTPS.SSLKey == "" || c.HTTPS.SSLCert == "" {
			errs = append(errs, fmt.Errorf("https.sslKey and https.sslCert are required when https is enabled"))
		}
		if c.HTTP.Enabled && c.HTTP.Port != 0 && c.HTTP.Port == c.HTTPS.Port {
			errs = append(errs, fmt.Errorf("http.port and https.port must differ, both are %d", c.HTTP.Port))
		}
	}

	// The channel needs a listener to ride on.
	if c.Socket.Enabled {
		if !c.HTTP.Enabled && !c.HTTPS.Enabled {
			errs = append(errs, fmt.Errorf("socket.enabled requires http.enabled or https.enabled"))
		}
		if !strings.HasPrefix(c.Socket.Path, "/") {
			errs = append(errs, fmt.Errorf("socket.path must start with \"/\", got %q", c.Socket.Path))
		}
		if c.Socket.MaxMessageBytes <= 0 {
			errs = append(errs, fmt.Errorf("socket.max_message_bytes must be > 0, got %d", c.Socket.MaxMessageBytes))
		}
	}

	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt", "session":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", \"jwt\", or \"session\", got %q", c.Auth.Type))
	}

	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	switch c.Session.Store {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("session.store must be \"memory\" or \"postgres\", got %q", c.Session.Store))
	}

	if c.Session.Store == "postgres" {
		if c.Session.Postgres.DSN == "" && c.Session.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("session.postgres.dsn or session.postgres.dsn_file is required when session.store is \"postgres\""))
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
