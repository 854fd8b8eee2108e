// Package transport provides the HTTP plumbing shared by all endpoints: the
// JSON error envelope writer and a middleware chain for panic recovery,
// request IDs (X-Request-ID) and structured access logging via log/slog.
//
// Middleware is plain func(http.Handler) http.Handler, so it composes with
// the auth, web and observability middleware.
package transport
