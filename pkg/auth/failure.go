package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/rhuss/appcommon/pkg/api"
	"github.com/rhuss/appcommon/pkg/audit"
	"github.com/rhuss/appcommon/pkg/observability"
	"github.com/rhuss/appcommon/pkg/transport"
)

// FailureHandler writes the response for a rejected request.
type FailureHandler func(w http.ResponseWriter, r *http.Request, err error)

// failureSlot is the per-request holder of the failure handler.
type failureSlot struct {
	mu      sync.Mutex
	handler FailureHandler
	audited bool
}

type failureSlotKey struct{}

func withFailureSlot(ctx context.Context, h FailureHandler) (context.Context, *failureSlot) {
	slot := &failureSlot{handler: h}
	return context.WithValue(ctx, failureSlotKey{}, slot), slot
}

func failureSlotFrom(ctx context.Context) *failureSlot {
	slot, _ := ctx.Value(failureSlotKey{}).(*failureSlot)
	return slot
}

func (s *failureSlot) get() FailureHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// FailureHandlerFromContext returns the request's current failure handler,
// or nil outside Middleware.
func FailureHandlerFromContext(ctx context.Context) FailureHandler {
	if slot := failureSlotFrom(ctx); slot != nil {
		return slot.get()
	}
	return nil
}

// DefaultFailureHandler answers ErrUnavailable with 503 and everything
// else with the challenger's status and header.
func DefaultFailureHandler(ch Challenger) FailureHandler {
	if ch == nil {
		ch = BearerChallenger{}
	}
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, ErrUnavailable) {
			transport.WriteErrorResponse(w, api.NewUnavailableError("authentication service unavailable"), http.StatusServiceUnavailable)
			return
		}
		cd := ch.Challenge(r)
		if cd.HeaderName != "" {
			w.Header().Set(cd.HeaderName, cd.HeaderValue)
		}
		status := cd.Status
		if status == 0 {
			status = http.StatusUnauthorized
		}
		transport.WriteErrorResponse(w, api.NewAuthenticationError("authentication required"), status)
	}
}

// InstallAuditWrapper wraps the request's failure handler so that every
// error response it writes (status >= 400) is also recorded as an
// authenticate/failure audit event. It installs at most once per request
// and reports whether this call installed it. Without a slot in ctx or
// with a nil logger it does nothing.
func InstallAuditWrapper(ctx context.Context, logger audit.Logger) bool {
	slot := failureSlotFrom(ctx)
	if slot == nil || logger == nil {
		return false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.audited {
		return false
	}

	original := slot.handler
	slot.handler = func(w http.ResponseWriter, r *http.Request, err error) {
		sw := observability.NewStatusWriter(w)
		original(sw, r, err)

		if sw.Status() < http.StatusBadRequest {
			return
		}
		metadata := map[string]string{
			audit.KeyMethod:       r.Method,
			audit.KeyPath:         r.URL.Path,
			audit.KeyResponseCode: strconv.Itoa(sw.Status()),
		}
		if err != nil {
			metadata[audit.KeyErrorMsg] = err.Error()
		}
		logger.Log(r.Context(), audit.Category, audit.ActionAuthenticate, audit.OutcomeFailure, metadata, audit.HTTPRequestInfo(r))
		slog.Debug("authentication failure audited", "path", r.URL.Path, "status", sw.Status())
	}
	slot.audited = true
	return true
}
