package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/appcommon/pkg/audit"
	"github.com/rhuss/appcommon/pkg/auth"
	"github.com/rhuss/appcommon/pkg/auth/apikey"
	"github.com/rhuss/appcommon/pkg/auth/jwt"
	"github.com/rhuss/appcommon/pkg/auth/oidc"
	"github.com/rhuss/appcommon/pkg/config"
	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/observability"
	"github.com/rhuss/appcommon/pkg/storage/memory"
	"github.com/rhuss/appcommon/pkg/storage/postgres"
	"github.com/rhuss/appcommon/pkg/transport"
	transporthttp "github.com/rhuss/appcommon/pkg/transport/http"
	"github.com/rhuss/appcommon/pkg/web"
)

// configStore is a dynamic property store the server can probe and release.
type configStore interface {
	dynconfig.Storage
	HealthCheck(ctx context.Context) error
	Close() error
}

// tokenVerifier verifies bearer tokens and tokens issued by the token endpoint.
type tokenVerifier interface {
	auth.Authenticator
	auth.IdentityProvider
}

type app struct {
	cfg       *config.Config
	store     configStore
	index     *dynconfig.PropertyIndex
	sources   *dynconfig.Sources
	refresher *dynconfig.Refresher
	handler   http.Handler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		store: store,
		index: dynconfig.NewPropertyIndexFromDefs(cfg.DynamicConfig.Properties...),
	}
	a.sources = dynconfig.NewSources(cfg.DynamicConfig.Profile,
		dynconfig.NewDynamicSource(store, a.index),
		dynconfig.NewEnvSource(),
		dynconfig.NewMapSource("config file", dynconfig.FileOrdinal, cfg.Properties),
	)
	if cfg.DynamicConfig.RefreshInterval > 0 {
		a.refresher = dynconfig.NewRefresher(store, cfg.DynamicConfig.RefreshInterval, logStaleTenants)
	}

	a.handler, err = a.buildHandler()
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newStore(ctx context.Context, cfg config.StorageConfig) (configStore, error) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("config storage enabled", "type", "memory")
		return memory.New(), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres storage: %w", err)
		}
		slog.Info("config storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func logStaleTenants(_ context.Context, tenants []string) {
	slog.Info("dynamic config properties changed", "tenants", tenants)
}

func (a *app) buildHandler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", transporthttp.Liveness())
	mux.Handle("GET /readyz", transporthttp.Readiness(map[string]transporthttp.Checker{
		"storage": transporthttp.CheckerFunc(a.store.HealthCheck),
	}))
	if m := a.cfg.Observability.Metrics; m.Enabled {
		mux.Handle("GET "+m.Path, promhttp.Handler())
	}
	transporthttp.NewConfigAPI(a.store, a.index, a.sources).Register(mux)

	authn, err := a.buildAuth()
	if err != nil {
		return nil, err
	}

	var handler http.Handler = mux
	if bh := a.cfg.Web.BaseHref; bh.Enabled {
		f, err := web.NewBaseHrefFilter(web.Params{"fromHref": bh.FromHref, "toHref": bh.ToHref})
		if err != nil {
			return nil, fmt.Errorf("base href filter: %w", err)
		}
		handler = f.Wrap(handler)
	}
	if cc := a.cfg.Web.CacheControl; cc.Enabled {
		handler = web.NewCacheControlFilter(web.Params{"disabledFor": cc.DisabledFor}).Wrap(handler)
	}

	return transport.Chain(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(slog.Default()),
		observability.MetricsMiddleware,
		authn,
	)(handler), nil
}

func (a *app) buildAuth() (transport.Middleware, error) {
	ac := a.cfg.Auth
	challenger := auth.BearerChallenger{Realm: ac.Realm}

	var verifier tokenVerifier
	if ac.Enabled {
		verifier = newTokenVerifier(ac)
	}

	var tokens *oidc.Client
	if ac.TokenEndpoint.URL != "" {
		tokens = oidc.NewClient(ac.TokenEndpoint.URL, oidc.WithTimeout(ac.TokenEndpoint.Timeout))
	}

	mcfg := auth.MechanismConfig{
		Enabled:          ac.Enabled,
		BasicAuthEnabled: ac.BasicAuth.Enabled,
		TokenEndpoint:    ac.TokenEndpoint.URL,
		ClientID:         ac.ClientID,
		ClientSecret:     ac.ClientSecret,
		Audit:            audit.NewSlogLogger(slog.Default()),
		Tokens:           tokens,
		Challenger:       challenger,
	}
	if verifier != nil {
		mcfg.OIDC = verifier
		mcfg.Identities = verifier
	}
	mech, err := auth.NewMechanism(mcfg)
	if err != nil {
		return nil, fmt.Errorf("auth mechanism: %w", err)
	}

	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{mech},
		DefaultDecision: auth.No,
	}
	if !ac.Enabled || ac.AnonymousAccess {
		chain.DefaultDecision = auth.Yes
	}

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if m := a.cfg.Observability.Metrics; m.Enabled {
		bypass = append(bypass, m.Path)
	}
	bypass = append(bypass, ac.BypassEndpoints...)

	slog.Info("authentication configured",
		"enabled", ac.Enabled,
		"basic_auth", ac.BasicAuth.Enabled,
		"password_grant", ac.ClientSecret != nil,
		"tokens", ac.Tokens,
		"anonymous", ac.AnonymousAccess)

	return auth.Middleware(chain, bypass, auth.WithChallenger(challenger)), nil
}

func newTokenVerifier(ac config.AuthConfig) tokenVerifier {
	if ac.Tokens == "apikey" {
		entries := make([]apikey.Entry, 0, len(ac.APIKeys))
		for _, k := range ac.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.Entry{Key: k.Key, Identity: id})
		}
		return apikey.New(entries)
	}
	return jwt.New(jwt.Config{
		Issuer:             ac.JWT.Issuer,
		Audience:           ac.JWT.Audience,
		JWKSURL:            ac.JWT.JWKSURL,
		UserClaim:          ac.JWT.UserClaim,
		TenantClaim:        ac.JWT.TenantClaim,
		ScopesClaim:        ac.JWT.ScopesClaim,
		CacheTTL:           ac.JWT.CacheTTL,
		MinRefreshInterval: ac.JWT.MinRefreshInterval,
	})
}

func listenAddr(cfg *config.Config) string {
	return ":" + strconv.Itoa(cfg.Server.Port)
}
