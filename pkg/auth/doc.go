// Package auth provides pluggable HTTP authentication.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// rejected), or Abstain (no opinion). A configurable default decides when
// all authenticators abstain.
//
// Mechanism is the composite authenticator: it exchanges HTTP Basic
// credentials for an access token at an OIDC token endpoint (client
// credentials or password grant), hands the token to an IdentityProvider,
// and otherwise delegates to a bearer-token Authenticator.
//
// Middleware runs a chain per request. It gives every request a failure
// handler slot which authenticators may wrap, for example with the audit
// wrapper, and injects the identity and tenant into the request context.
package auth
