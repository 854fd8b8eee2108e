package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/appcommon/pkg/audit"
	"github.com/rhuss/appcommon/pkg/auth/oidc"
	"github.com/rhuss/appcommon/pkg/debug"
	"github.com/rhuss/appcommon/pkg/observability"
)

// Mechanism label values for appcommon_authentication_total.
const (
	PathClientCredentials = "basic_client_credentials"
	PathPasswordGrant     = "basic_password_grant"
	PathOIDC              = "oidc"
)

// MechanismConfig configures a Mechanism.
type MechanismConfig struct {
	// Enabled is the master switch. When false, Authenticate abstains
	// without side effects.
	Enabled bool

	// BasicAuthEnabled accepts HTTP Basic credentials as client_id and
	// client_secret for a client_credentials grant.
	BasicAuthEnabled bool

	// TokenEndpoint is the OIDC token endpoint URL.
	TokenEndpoint string

	// ClientID identifies this application to the token endpoint.
	ClientID string

	// ClientSecret enables the password grant path when non-nil. An empty
	// string counts as set.
	ClientSecret *string

	// OIDC handles requests that carry no Basic credentials, typically a
	// bearer token authenticator.
	OIDC Authenticator

	// Identities authenticates tokens obtained from the token endpoint.
	Identities IdentityProvider

	// Audit receives authentication failure records. Defaults to an
	// audit.SlogLogger on slog.Default().
	Audit audit.Logger

	// Tokens overrides the token endpoint client built from TokenEndpoint.
	Tokens *oidc.Client

	// Challenger overrides the bearer challenge.
	Challenger Challenger
}

// Mechanism authenticates requests by exchanging HTTP Basic credentials at
// an OIDC token endpoint, or by delegating to a bearer token authenticator.
// It holds no per-request state and is safe for concurrent use.
type Mechanism struct {
	cfg        MechanismConfig
	tokens     *oidc.Client
	audit      audit.Logger
	challenger Challenger
}

var (
	_ Authenticator = (*Mechanism)(nil)
	_ Challenger    = (*Mechanism)(nil)
)

// NewMechanism validates cfg and builds the token endpoint client when
// authentication is enabled.
func NewMechanism(cfg MechanismConfig) (*Mechanism, error) {
	m := &Mechanism{cfg: cfg, audit: cfg.Audit, challenger: cfg.Challenger}
	if m.audit == nil {
		m.audit = audit.NewSlogLogger(nil)
	}
	if m.challenger == nil {
		m.challenger = BearerChallenger{}
	}
	if !cfg.Enabled {
		return m, nil
	}

	if cfg.OIDC == nil {
		return nil, errors.New("auth: an OIDC authenticator is required when authentication is enabled")
	}
	if cfg.BasicAuthEnabled || cfg.ClientSecret != nil {
		if cfg.Identities == nil {
			return nil, errors.New("auth: an identity provider is required for token endpoint authentication")
		}
		m.tokens = cfg.Tokens
		if m.tokens == nil {
			if cfg.TokenEndpoint == "" {
				return nil, errors.New("auth: token endpoint URL is required for basic authentication")
			}
			m.tokens = oidc.NewClient(cfg.TokenEndpoint)
		}
	}
	return m, nil
}

// Authenticate implements Authenticator.
//
// When enabled it first installs the audit wrapper on the request's
// failure handler. HTTP Basic credentials are then tried as a
// client_credentials grant if BasicAuthEnabled; otherwise, with a client
// secret configured, as a password grant. Requests without Basic
// credentials are delegated to the OIDC authenticator.
func (m *Mechanism) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	if !m.cfg.Enabled {
		return AuthResult{Decision: Abstain}
	}

	InstallAuditWrapper(ctx, m.audit)

	if m.cfg.BasicAuthEnabled {
		if creds, ok := ExtractCredentials(r); ok {
			return observe(PathClientCredentials, m.clientCredentials(ctx, r, creds))
		}
	}
	return m.customAuthentication(ctx, r)
}

func (m *Mechanism) customAuthentication(ctx context.Context, r *http.Request) AuthResult {
	if m.cfg.ClientSecret == nil {
		return observe(PathOIDC, m.cfg.OIDC.Authenticate(ctx, r))
	}
	creds, ok := ExtractCredentials(r)
	if !ok {
		return observe(PathOIDC, m.cfg.OIDC.Authenticate(ctx, r))
	}
	return observe(PathPasswordGrant, m.passwordGrant(ctx, r, creds))
}

// clientCredentials uses the presented credentials as the OAuth2 client.
func (m *Mechanism) clientCredentials(ctx context.Context, r *http.Request, creds Credentials) AuthResult {
	sess := m.tokens.Open(ctx, creds.User, creds.Secret)
	defer sess.Close()

	token, err := sess.Authenticate(ctx)
	if err != nil {
		return tokenFailure(creds, err)
	}
	return m.authenticateToken(ctx, r, token)
}

// passwordGrant uses the configured client and the presented credentials
// as the resource owner.
func (m *Mechanism) passwordGrant(ctx context.Context, r *http.Request, creds Credentials) AuthResult {
	sess := m.tokens.Open(ctx, m.cfg.ClientID, *m.cfg.ClientSecret)
	defer sess.Close()

	token, err := sess.PasswordGrant(ctx, creds.User, creds.Secret)
	if err != nil {
		return tokenFailure(creds, err)
	}
	if token == "" {
		debug.Log("auth", "password grant returned no token", "user", creds)
		return AuthResult{Decision: Abstain}
	}
	return m.authenticateToken(ctx, r, token)
}

func (m *Mechanism) authenticateToken(ctx context.Context, r *http.Request, token string) AuthResult {
	res := m.cfg.Identities.AuthenticateToken(ctx, TokenRequest{Token: token, Request: r})
	switch res.Decision {
	case Yes:
		return res
	case Abstain:
		return AuthResult{Decision: No, Err: fmt.Errorf("%w: no identity provider accepted the token", ErrAuthenticationFailed)}
	default:
		if res.Err == nil {
			res.Err = ErrAuthenticationFailed
		} else if !errors.Is(res.Err, ErrUnavailable) && !errors.Is(res.Err, ErrAuthenticationFailed) {
			res.Err = fmt.Errorf("%w: %w", ErrAuthenticationFailed, res.Err)
		}
		return res
	}
}

// tokenFailure maps token endpoint errors: a refusal is an authentication
// failure, anything else means the endpoint is unavailable.
func tokenFailure(creds Credentials, err error) AuthResult {
	if errors.Is(err, oidc.ErrNotAuthorized) {
		debug.Log("auth", "token endpoint refused credentials", "user", creds, "error", err)
		return AuthResult{Decision: No, Err: fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)}
	}
	slog.Warn("token endpoint request failed", "user", creds, "error", err)
	return AuthResult{Decision: No, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

// Challenge returns the bearer challenge.
func (m *Mechanism) Challenge(r *http.Request) ChallengeData {
	return m.challenger.Challenge(r)
}

// CredentialTransport reports that credentials travel in the Authorization
// header with the bearer scheme.
func (m *Mechanism) CredentialTransport() CredentialTransport {
	return CredentialTransport{Type: TransportAuthorization, Scheme: "bearer"}
}

// CredentialTypes lists the authentication request types the mechanism
// produces.
func (m *Mechanism) CredentialTypes() []CredentialType {
	return []CredentialType{CredentialTypeToken}
}

func observe(path string, res AuthResult) AuthResult {
	observability.AuthenticationTotal.WithLabelValues(path, decisionLabel(res)).Inc()
	return res
}

func decisionLabel(res AuthResult) string {
	switch {
	case res.Decision == Yes:
		return "identity"
	case res.Decision == Abstain:
		return "none"
	case errors.Is(res.Err, ErrUnavailable):
		return "unavailable"
	default:
		return "failure"
	}
}
