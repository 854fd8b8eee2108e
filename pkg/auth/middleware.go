package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/appcommon/pkg/api"
	"github.com/rhuss/appcommon/pkg/storage"
	"github.com/rhuss/appcommon/pkg/transport"
)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	challenger Challenger
	failure    FailureHandler
}

// WithChallenger sets the challenge used by the default failure handler.
func WithChallenger(ch Challenger) MiddlewareOption {
	return func(c *middlewareConfig) { c.challenger = ch }
}

// WithFailureHandler replaces the default failure handler.
func WithFailureHandler(h FailureHandler) MiddlewareOption {
	return func(c *middlewareConfig) { c.failure = h }
}

// Middleware creates HTTP middleware from an AuthChain.
// It checks the bypass list, installs the per-request failure handler,
// runs authentication and injects identity and tenant context.
func Middleware(chain *AuthChain, bypassEndpoints []string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{challenger: BearerChallenger{}}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.failure == nil {
		cfg.failure = DefaultFailureHandler(cfg.challenger)
	}

	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx, slot := withFailureSlot(r.Context(), cfg.failure)
			r = r.WithContext(ctx)

			result := chain.Authenticate(ctx, r)

			if result.Decision != Yes {
				err := result.Err
				if err == nil {
					err = ErrUnauthenticated
				}
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				slot.get()(w, r, err)
				return
			}

			if result.Identity == nil {
				slot.get()(w, r, ErrUnauthenticated)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteErrorResponse(w, api.NewServerError("internal authentication error"), http.StatusInternalServerError)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ctx = SetIdentity(ctx, result.Identity)
			if tenantID := result.Identity.TenantID(); tenantID != "" {
				ctx = storage.SetTenant(ctx, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}
