package auth

import (
	"net/http"
	"strconv"
)

// ChallengeData describes the response that asks a client to authenticate.
type ChallengeData struct {
	Status      int
	HeaderName  string
	HeaderValue string
}

// Challenger produces the authentication challenge for a request.
type Challenger interface {
	Challenge(r *http.Request) ChallengeData
}

// BearerChallenger answers 401 with "WWW-Authenticate: Bearer".
type BearerChallenger struct {
	// Realm is added as realm="..." when non-empty.
	Realm string
}

// Challenge implements Challenger.
func (b BearerChallenger) Challenge(_ *http.Request) ChallengeData {
	value := "Bearer"
	if b.Realm != "" {
		value += " realm=" + strconv.Quote(b.Realm)
	}
	return ChallengeData{
		Status:      http.StatusUnauthorized,
		HeaderName:  "WWW-Authenticate",
		HeaderValue: value,
	}
}

// TransportType is where credentials travel.
type TransportType string

// TransportAuthorization is the Authorization request header.
const TransportAuthorization TransportType = "authorization"

// CredentialTransport names the header and scheme an authenticator reads.
type CredentialTransport struct {
	Type   TransportType
	Scheme string
}

// CredentialType identifies a kind of authentication request.
type CredentialType string

// CredentialTypeToken is an access token authentication request.
const CredentialTypeToken CredentialType = "token"
