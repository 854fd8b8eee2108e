package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/appcommon/pkg/observability"
)

// Logging returns middleware that emits one structured log entry per
// request with method, path, status, bytes written, duration and request
// ID. 5xx responses are logged at ERROR, 4xx at WARN, the rest at INFO.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if l == nil {
				l = slog.Default()
			}
			start := time.Now()
			sw := observability.NewStatusWriter(w)

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			switch {
			case sw.Status() >= 500:
				level = slog.LevelError
			case sw.Status() >= 400:
				level = slog.LevelWarn
			}

			l.LogAttrs(r.Context(), level, "request completed",
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.Status()),
				slog.Int64("bytes", sw.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
