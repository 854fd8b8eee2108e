package transport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/appcommon/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered. http.ErrAbortHandler is
// re-raised.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic in handler",
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"panic", fmt.Sprint(rec),
				)
				WriteErrorResponse(w, api.NewServerError("internal server error"), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
