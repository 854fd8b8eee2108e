package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, APP_CONFIG env, ./config.yaml, /etc/appcommon/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
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

// discoverConfigFile returns the first of: configPath, $APP_CONFIG,
// ./config.yaml, /etc/appcommon/config.yaml. Empty if none applies.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("APP_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/appcommon/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses path over cfg. Fields absent from the file keep
// their current values. Unknown keys are rejected.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides maps APP_* environment variables to config fields.
// Malformed numbers and booleans are errors rather than silently ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup("APP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("APP_PORT: %q is not a number", v))
		} else {
			cfg.Server.Port = port
		}
	}

	boolean("APP_AUTH_ENABLED", &cfg.Auth.Enabled)
	boolean("APP_BASIC_AUTH_ENABLED", &cfg.Auth.BasicAuth.Enabled)
	boolean("APP_ANONYMOUS_ACCESS", &cfg.Auth.AnonymousAccess)
	str("APP_TOKEN_ENDPOINT", &cfg.Auth.TokenEndpoint.URL)
	str("APP_CLIENT_ID", &cfg.Auth.ClientID)
	str("APP_AUTH_TOKENS", &cfg.Auth.Tokens)
	str("APP_JWKS_URL", &cfg.Auth.JWT.JWKSURL)

	// An empty client secret is still a configured secret.
	if v, ok := lookup("APP_CLIENT_SECRET"); ok {
		cfg.Auth.ClientSecret = &v
	}

	if v, ok := lookup("APP_API_KEYS"); ok && v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			errs = append(errs, fmt.Errorf("APP_API_KEYS: %w", err))
		} else {
			cfg.Auth.APIKeys = keys
		}
	}

	str("APP_STORAGE", &cfg.Storage.Type)
	str("APP_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	str("APP_PROFILE", &cfg.DynamicConfig.Profile)
	str("APP_LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// resolveFileReferences fills empty value fields from their _file
// counterparts. File contents are trimmed of surrounding whitespace.
func resolveFileReferences(cfg *Config) error {
	if cfg.Auth.ClientSecretFile != "" && cfg.Auth.ClientSecret == nil {
		val, err := readSecretFile(cfg.Auth.ClientSecretFile)
		if err != nil {
			return fmt.Errorf("auth.client_secret_file: %w", err)
		}
		cfg.Auth.ClientSecret = &val
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

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

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
