package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/weft/pkg/debug"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "WEFT_CONFIG"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, WEFT_CONFIG env, ./config.yaml, /etc/weft/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log(debug.Config, "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. WEFT_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/weft/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv(EnvConfig); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/weft/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps WEFT_* environment variables to config fields.
// Malformed boolean or numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var err error
	if cfg.HTTP.Enabled, err = envBool("WEFT_HTTP_ENABLED", cfg.HTTP.Enabled); err != nil {
		return err
	}
	if cfg.HTTP.Port, err = envInt("WEFT_HTTP_PORT", cfg.HTTP.Port); err != nil {
		return err
	}
	if cfg.HTTPS.Enabled, err = envBool("WEFT_HTTPS_ENABLED", cfg.HTTPS.Enabled); err != nil {
		return err
	}
	if cfg.HTTPS.Port, err = envInt("WEFT_HTTPS_PORT", cfg.HTTPS.Port); err != nil {
		return err
	}
	if v := os.Getenv("WEFT_HTTPS_SSL_KEY"); v != "" {
		cfg.HTTPS.SSLKey = v
	}
	if v := os.Getenv("WEFT_HTTPS_SSL_CERT"); v != "" {
		cfg.HTTPS.SSLCert = v
	}
	if cfg.Socket.Enabled, err = envBool("WEFT_SOCKET_ENABLED", cfg.Socket.Enabled); err != nil {
		return err
	}
	if v := os.Getenv("WEFT_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("WEFT_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("WEFT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// WEFT_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("WEFT_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
	return nil
}

func envBool(name string, current bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return current, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

func envInt(name string, current int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return current, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// session.postgres.dsn_file -> session.postgres.dsn
	if cfg.Session.Postgres.DSNFile != "" && cfg.Session.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Session.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("session.postgres.dsn_file: %w", err)
		}
		cfg.Session.Postgres.DSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
