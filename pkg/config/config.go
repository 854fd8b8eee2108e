// Package config provides unified configuration for appcommon services.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (APP_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/appcommon/pkg/dynconfig"
)

// Config holds all configuration for an appcommon service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	DynamicConfig DynamicConfig       `yaml:"dynamic_config"`
	Web           WebConfig           `yaml:"web"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Properties are static application properties. They rank below
	// environment variables and the dynamic source.
	Properties map[string]string `yaml:"properties"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Enabled is the master switch for the authentication mechanism.
	Enabled bool `yaml:"enabled"`

	// BasicAuth accepts HTTP Basic credentials as OAuth2 client credentials.
	BasicAuth BasicAuthConfig `yaml:"basic_auth"`

	TokenEndpoint TokenEndpointConfig `yaml:"token_endpoint"`

	// ClientID identifies this application at the token endpoint.
	ClientID string `yaml:"client_id"`

	// ClientSecret enables the password grant when set, even when empty.
	ClientSecret     *string `yaml:"client_secret"`
	ClientSecretFile string  `yaml:"client_secret_file"` // _file variant for client_secret

	// Realm is added to the WWW-Authenticate challenge.
	Realm string `yaml:"realm"`

	// Tokens selects how bearer tokens and issued access tokens are
	// verified: "jwt" or "apikey". Default: "jwt".
	Tokens string `yaml:"tokens"`

	JWT     JWTConfig      `yaml:"jwt"`
	APIKeys []APIKeyConfig `yaml:"api_keys"`

	// AnonymousAccess lets requests through when every authenticator
	// abstains. It has no effect when Enabled is false, which always allows.
	AnonymousAccess bool `yaml:"anonymous_access"`

	// BypassEndpoints skip authentication entirely.
	BypassEndpoints []string `yaml:"bypass_endpoints"`
}

// BasicAuthConfig holds the HTTP Basic client_credentials switch.
type BasicAuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TokenEndpointConfig locates the OIDC token endpoint.
type TokenEndpointConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // default: 10s
}

// JWTConfig configures JWT verification against a JWKS endpoint.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`

	// MinRefreshInterval bounds how often unknown kids trigger a JWKS fetch.
	MinRefreshInterval time.Duration `yaml:"min_refresh_interval"`
}

// APIKeyConfig describes a single static key.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// StorageConfig selects the dynamic property store.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`  // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"` // default: 10
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// DynamicConfig declares which properties are served from storage.
type DynamicConfig struct {
	// Properties is the property index.
	Properties []dynconfig.PropertyDef `yaml:"properties"`

	// RefreshInterval is how often storage is polled for changed tenants.
	// Zero disables polling. Default: 30s.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Profile selects "%profile." prefixed properties first.
	Profile string `yaml:"profile"`
}

// WebConfig configures the UI response filters.
type WebConfig struct {
	BaseHref     BaseHrefConfig     `yaml:"base_href"`
	CacheControl CacheControlConfig `yaml:"cache_control"`
}

// BaseHrefConfig configures the base href rewrite.
type BaseHrefConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FromHref string `yaml:"from_href"`
	ToHref   string `yaml:"to_href"`
}

// CacheControlConfig configures caching headers.
type CacheControlConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DisabledFor string `yaml:"disabled_for"` // comma separated URI substrings
}

// LoggingConfig configures slog and debug categories.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error", default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma separated debug categories
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

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Tokens:        "jwt",
			TokenEndpoint: TokenEndpointConfig{Timeout: 10 * time.Second},
		},
		Storage: StorageConfig{
			Type:     "memory",
			Postgres: PostgresConfig{MaxConns: 10},
		},
		DynamicConfig: DynamicConfig{
			RefreshInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
