// Package apikey authenticates opaque tokens against a static key list.
// Keys are stored as SHA-256 hashes and compared in constant time.
//
// It serves as the bearer delegate and as the identity provider for tokens
// issued by the token endpoint when those tokens are opaque.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/rhuss/appcommon/pkg/auth"
)

// Entry is one configured key and the identity it grants.
type Entry struct {
	Key      string
	Identity auth.Identity
}

type hashedEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates tokens against hashed keys.
type Authenticator struct {
	keys []hashedEntry
}

var (
	_ auth.Authenticator    = (*Authenticator)(nil)
	_ auth.IdentityProvider = (*Authenticator)(nil)
)

// New hashes the entries' keys. Plaintext keys are not retained.
func New(entries []Entry) *Authenticator {
	a := &Authenticator{keys: make([]hashedEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, hashedEntry{hash: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Authenticate reads "Authorization: Bearer <key>". It abstains without a
// bearer header.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	return a.lookup(token)
}

// AuthenticateToken checks a token obtained from the token endpoint.
func (a *Authenticator) AuthenticateToken(_ context.Context, req auth.TokenRequest) auth.AuthResult {
	if req.Token == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	return a.lookup(req.Token)
}

func (a *Authenticator) lookup(token string) auth.AuthResult {
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: empty bearer token", auth.ErrAuthenticationFailed)}
	}

	sum := sha256.Sum256([]byte(token))
	for _, e := range a.keys {
		if subtle.ConstantTimeCompare(sum[:], e.hash[:]) == 1 {
			id := e.identity
			id.Metadata = maps.Clone(e.identity.Metadata)
			id.Scopes = append([]string(nil), e.identity.Scopes...)
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}
	return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("%w: unknown key", auth.ErrAuthenticationFailed)}
}
