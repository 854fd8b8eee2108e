// Package oidc is a client for an OAuth2/OIDC token endpoint supporting the
// client_credentials and password grants.
//
// A Client is shared by the whole process. Each authentication attempt opens
// a Session scoped to one set of credentials and closes it when done:
//
//	sess := client.Open(ctx, clientID, clientSecret)
//	defer sess.Close()
//	token, err := sess.Authenticate(ctx)
//
// Tokens are never cached. Retries are left to the caller.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rhuss/appcommon/pkg/debug"
	"github.com/rhuss/appcommon/pkg/observability"
)

// Grant types, also used as metric labels.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

var (
	// ErrNotAuthorized is returned when the token endpoint rejects the
	// credentials with 401 or 403.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrSessionClosed is returned by a Session after Close.
	ErrSessionClosed = errors.New("token endpoint session closed")
)

// Client talks to one token endpoint. It is safe for concurrent use.
type Client struct {
	tokenURL   string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout bounds every token request. Zero means no client-side limit
// beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// NewClient creates a client for the token endpoint at tokenURL.
func NewClient(tokenURL string, opts ...Option) *Client {
	c := &Client{
		tokenURL:   tokenURL,
		httpClient: &http.Client{},
		timeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenURL returns the endpoint URL.
func (c *Client) TokenURL() string { return c.tokenURL }

// Open starts a session for the given client credentials. The session is
// bound to ctx and must be closed by the caller.
func (c *Client) Open(ctx context.Context, clientID, clientSecret string) *Session {
	sctx, cancel := context.WithCancel(ctx)
	sctx = context.WithValue(sctx, oauth2.HTTPClient, c.httpClient)
	observability.TokenEndpointSessionsOpen.Inc()
	return &Session{
		client:       c,
		clientID:     clientID,
		clientSecret: clientSecret,
		ctx:          sctx,
		cancel:       cancel,
	}
}

// Session is a scoped use of the token endpoint with one set of client
// credentials. Close aborts in-flight requests. A Session must not be used
// from several goroutines at once except for Close.
type Session struct {
	client       *Client
	clientID     string
	clientSecret string

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	observability.TokenEndpointSessionsOpen.Dec()
	return nil
}

// Authenticate performs a client_credentials grant with the session's own
// credentials and returns the access token.
func (s *Session) Authenticate(ctx context.Context) (string, error) {
	cfg := &clientcredentials.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		TokenURL:     s.client.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := s.fetch(ctx, GrantClientCredentials, cfg.Token)
	if err != nil {
		if isMissingToken(err) {
			return "", fmt.Errorf("%w: no access token in client_credentials response", ErrNotAuthorized)
		}
		return "", err
	}
	return tok.AccessToken, nil
}

// PasswordGrant performs a password grant with the session's credentials as
// the client and user/password as the resource owner. It returns "" and a
// nil error when the endpoint answers without an access token.
func (s *Session) PasswordGrant(ctx context.Context, user, password string) (string, error) {
	cfg := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.client.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tok, err := s.fetch(ctx, GrantPassword, func(ctx context.Context) (*oauth2.Token, error) {
		return cfg.PasswordCredentialsToken(ctx, user, password)
	})
	if err != nil {
		if isMissingToken(err) {
			return "", nil
		}
		return "", err
	}
	return tok.AccessToken, nil
}

func (s *Session) fetch(ctx context.Context, grant string, do func(context.Context) (*oauth2.Token, error)) (*oauth2.Token, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	rctx, cancel := s.requestContext(ctx)
	defer cancel()

	start := time.Now()
	tok, err := do(rctx)
	observability.TokenEndpointLatency.WithLabelValues(grant).Observe(time.Since(start).Seconds())

	err = classify(err)
	observability.TokenEndpointRequestsTotal.WithLabelValues(grant, statusLabel(err)).Inc()

	if err != nil {
		debug.Log("auth", "token request failed", "grant", grant, "client_id", s.clientID, "error", err)
		return nil, err
	}
	debug.Log("auth", "token issued", "grant", grant, "client_id", s.clientID)
	return tok, nil
}

// requestContext derives a context that ends when the session is closed,
// the caller's ctx is done or the client timeout expires.
func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if s.client.timeout <= 0 {
		return rctx, func() { stop(); cancel() }
	}
	rctx, tcancel := context.WithTimeout(rctx, s.client.timeout)
	return rctx, func() { stop(); tcancel(); cancel() }
}

// maxTracedBody caps error response bodies written at TRACE level.
const maxTracedBody = 512

// classify maps 401 and 403 responses to ErrNotAuthorized.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		debug.Trace("auth", "token endpoint error response",
			"status", rerr.Response.StatusCode,
			"body", debug.Truncate(string(rerr.Body), maxTracedBody))
		switch rerr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: token endpoint returned %d", ErrNotAuthorized, rerr.Response.StatusCode)
		}
		// Some servers answer 400 invalid_client / invalid_grant for bad
		// credentials.
		if rerr.Response.StatusCode == http.StatusBadRequest &&
			(rerr.ErrorCode == "invalid_client" || rerr.ErrorCode == "invalid_grant" || rerr.ErrorCode == "unauthorized_client") {
			return fmt.Errorf("%w: %s", ErrNotAuthorized, rerr.ErrorCode)
		}
		return fmt.Errorf("token endpoint returned %d: %w", rerr.Response.StatusCode, err)
	}
	return fmt.Errorf("token endpoint request failed: %w", err)
}

func isMissingToken(err error) bool {
	return err != nil && !errors.Is(err, ErrNotAuthorized) && strings.Contains(err.Error(), "missing access_token")
}

func statusLabel(err error) string {
	var rerr *oauth2.RetrieveError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.As(err, &rerr) && rerr.Response != nil:
		return strconv.Itoa(rerr.Response.StatusCode)
	default:
		return "error"
	}
}
