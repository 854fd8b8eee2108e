package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rhuss/appcommon/pkg/transport"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Liveness answers 200 "ok" unconditionally.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}
}

// Readiness runs every named check with a short deadline. Any failure
// yields 503 with the failing checks in the body.
func Readiness(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := make(map[string]string)
		for name, c := range checks {
			if err := c.HealthCheck(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
			return
		}
		transport.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
