package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rhuss/appcommon/pkg/dynconfig"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, errors.New(`storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is "postgres"`))
		}
	default:
		errs = append(errs, fmt.Errorf(`storage.type must be "memory" or "postgres", got %q`, c.Storage.Type))
	}

	errs = append(errs, c.Auth.validate()...)

	seen := make(map[string]bool, len(c.DynamicConfig.Properties))
	for i, def := range c.DynamicConfig.Properties {
		if def.Name == "" {
			errs = append(errs, fmt.Errorf("dynamic_config.properties[%d].name is required", i))
			continue
		}
		if seen[def.Name] {
			errs = append(errs, fmt.Errorf("dynamic_config.properties[%d]: duplicate property %q", i, def.Name))
		}
		seen[def.Name] = true
		switch def.Type {
		case "", dynconfig.TypeString, dynconfig.TypeBoolean, dynconfig.TypeInteger, dynconfig.TypeLong:
		default:
			errs = append(errs, fmt.Errorf("dynamic_config.properties[%d]: unknown type %q", i, def.Type))
		}
	}
	if c.DynamicConfig.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("dynamic_config.refresh_interval must not be negative, got %s", c.DynamicConfig.RefreshInterval))
	}

	if bh := c.Web.BaseHref; bh.Enabled {
		if bh.FromHref == "" {
			errs = append(errs, errors.New("web.base_href.from_href is required when web.base_href is enabled"))
		}
		if bh.ToHref == "" {
			errs = append(errs, errors.New("web.base_href.to_href is required when web.base_href is enabled"))
		}
	}

	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf(`logging.format must be "text" or "json", got %q`, c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) validate() []error {
	var errs []error

	switch a.Tokens {
	case "jwt", "apikey":
	default:
		errs = append(errs, fmt.Errorf(`auth.tokens must be "jwt" or "apikey", got %q`, a.Tokens))
	}

	if !a.Enabled {
		return errs
	}

	if (a.BasicAuth.Enabled || a.ClientSecret != nil) && a.TokenEndpoint.URL == "" {
		errs = append(errs, errors.New("auth.token_endpoint.url is required when basic_auth is enabled or client_secret is set"))
	}
	if a.ClientSecret != nil && a.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id is required when client_secret is set"))
	}

	switch a.Tokens {
	case "jwt":
		if a.JWT.JWKSURL == "" {
			errs = append(errs, errors.New(`auth.jwt.jwks_url is required when auth.tokens is "jwt"`))
		}
	case "apikey":
		if len(a.APIKeys) == 0 {
			errs = append(errs, errors.New(`auth.api_keys must not be empty when auth.tokens is "apikey"`))
		}
		for i, k := range a.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	}

	return errs
}
