// Package jwt validates RS-signed JWT access tokens against a JWKS endpoint.
//
// An Authenticator serves two roles: as an auth.Authenticator it reads a
// bearer token from the request (the OIDC delegation path), and as an
// auth.IdentityProvider it verifies tokens obtained from the token endpoint.
package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/rhuss/appcommon/pkg/auth"
	"github.com/rhuss/appcommon/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is where signing keys are fetched from.
	JWKSURL string

	// UserClaim is the claim used as the identity subject. Default: "sub".
	UserClaim string

	// TenantClaim is the claim copied to the tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// ScopesClaim holds scopes as a space-separated string or an array.
	// Default: "scope".
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// MinRefreshInterval is the minimum time between two JWKS fetches.
	// Unknown kids seen within it are rejected without a fetch. Default: 1 minute.
	MinRefreshInterval time.Duration

	// HTTPClient is used for JWKS requests. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MinRefreshInterval == 0 {
		c.MinRefreshInterval = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator verifies JWTs.
type Authenticator struct {
	config Config
	keys   *keySet
}

var (
	_ auth.Authenticator    = (*Authenticator)(nil)
	_ auth.IdentityProvider = (*Authenticator)(nil)
)

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{
		config: cfg,
		keys: &keySet{
			keys:       make(map[string]*rsa.PublicKey),
			ttl:        cfg.CacheTTL,
			minRefresh: cfg.MinRefreshInterval,
			url:        cfg.JWKSURL,
			client:     cfg.HTTPClient,
			now:        time.Now,
		},
	}
}

// Authenticate reads "Authorization: Bearer <token>".
//
//   - Abstain: no Authorization header or another scheme
//   - No: token present but invalid, or the JWKS endpoint is unavailable
//   - Yes: valid token
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: empty bearer token", auth.ErrAuthenticationFailed),
		}
	}
	return a.verify(ctx, tokenStr)
}

// AuthenticateToken verifies a token obtained from the token endpoint.
func (a *Authenticator) AuthenticateToken(ctx context.Context, req auth.TokenRequest) auth.AuthResult {
	if req.Token == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	return a.verify(ctx, req.Token)
}

func (a *Authenticator) verify(ctx context.Context, tokenStr string) auth.AuthResult {
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return a.keys.get(ctx, kid)
	}, a.parserOptions()...)
	if err != nil {
		debug.Log("auth", "JWT validation failed", "error", err)
		if errors.Is(err, auth.ErrUnavailable) {
			return auth.AuthResult{Decision: auth.No, Err: err}
		}
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: invalid JWT: %w", auth.ErrAuthenticationFailed, err),
		}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: invalid JWT claims", auth.ErrAuthenticationFailed),
		}
	}

	subject := claimString(claims, a.config.UserClaim)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: JWT missing %q claim", auth.ErrAuthenticationFailed, a.config.UserClaim),
		}
	}

	identity := &auth.Identity{
		Subject:  subject,
		Scopes:   extractScopes(claims, a.config.ScopesClaim),
		Metadata: make(map[string]string),
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes accepts "read write" as well as ["read", "write"].
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}

// keySet caches RSA public keys by kid. Concurrent refreshes collapse
// into one fetch and fetches are at least minRefresh apart.
type keySet struct {
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
	lastErr     error
	ttl         time.Duration
	minRefresh  time.Duration
	url         string
	client      *http.Client
	now         func() time.Time
	group       singleflight.Group
}

// get returns the key for kid, refreshing the set when it is stale or the
// kid is unknown. Fetch failures wrap auth.ErrUnavailable.
func (s *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	now := s.now()
	fresh := !s.fetchedAt.IsZero() && now.Sub(s.fetchedAt) < s.ttl
	throttled := !s.attemptedAt.IsZero() && now.Sub(s.attemptedAt) < s.minRefresh
	lastErr := s.lastErr
	s.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}
	if throttled {
		switch {
		case lastErr != nil:
			return nil, fmt.Errorf("%w: %w", auth.ErrUnavailable, lastErr)
		case ok:
			return key, nil
		default:
			return nil, fmt.Errorf("key %q not found in JWKS", kid)
		}
	}

	_, err, _ := s.group.Do("jwks", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrUnavailable, err)
	}

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// refresh fetches the JWKS and replaces the cached keys. A refresh within
// minRefresh of the previous attempt reports that attempt's outcome. The
// lock is never held across the fetch.
func (s *keySet) refresh(ctx context.Context) error {
	s.mu.Lock()
	if now := s.now(); !s.attemptedAt.IsZero() && now.Sub(s.attemptedAt) < s.minRefresh {
		err := s.lastErr
		s.mu.Unlock()
		return err
	}
	s.attemptedAt = s.now()
	s.mu.Unlock()

	keys, err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		return err
	}
	s.keys = keys
	s.fetchedAt = s.now()
	debug.Log("auth", "JWKS cache refreshed", "keys", len(keys), "url", s.url)
	return nil
}

func (s *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating JWKS request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			debug.Log("auth", "skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"` // base64url modulus
	E   string `json:"e"` // base64url exponent
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}
