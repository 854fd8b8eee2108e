package auth

import (
	"log/slog"
	"net/http"
)

// Credentials are a user and secret taken from an HTTP Basic header.
// String and LogValue never reveal the secret.
type Credentials struct {
	User   string
	Secret string
}

func (c Credentials) String() string { return c.User + ":***" }

// LogValue implements slog.LogValuer.
func (c Credentials) LogValue() slog.Value { return slog.StringValue(c.User) }

// ExtractCredentials reads an "Authorization: Basic" header. The decoded
// value is split on the first colon. It reports false when the header is
// absent, uses another scheme, is not valid base64, has no colon, or names
// an empty user.
func ExtractCredentials(r *http.Request) (Credentials, bool) {
	user, secret, ok := r.BasicAuth()
	if !ok || user == "" {
		return Credentials{}, false
	}
	return Credentials{User: user, Secret: secret}, true
}
