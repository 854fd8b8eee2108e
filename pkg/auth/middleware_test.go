package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/appcommon/pkg/audit"
	"github.com/rhuss/appcommon/pkg/storage"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_BypassEndpoint(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	handler := Middleware(chain, []string{"/healthz"})(okHandler())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("bypass endpoint: status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_NoAuth_Rejects(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	handler := Middleware(chain, DefaultBypassEndpoints)(okHandler())

	req := httptest.NewRequest("GET", "/api/things", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}

	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Type != "authentication_error" {
		t.Errorf("error type = %q, want authentication_error", body.Error.Type)
	}
}

func TestMiddleware_Unavailable_Returns503(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: No, Err: fmt.Errorf("%w: dial tcp: refused", ErrUnavailable)}},
		},
		DefaultDecision: No,
	}
	handler := Middleware(chain, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/things", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want none on 503", got)
	}
}

func TestMiddleware_ValidAuth_Passes(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{
				Decision: Yes,
				Identity: &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}},
			}},
		},
		DefaultDecision: No,
	}

	var gotTenant string
	handler := Middleware(chain, DefaultBypassEndpoints)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = storage.GetTenant(r.Context())
		id := IdentityFromContext(r.Context())
		if id == nil || id.Subject != "alice" {
			t.Error("expected identity 'alice' in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/things", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("valid auth: status = %d, want 200", rec.Code)
	}
	if gotTenant != "org-1" {
		t.Errorf("tenant = %q, want %q", gotTenant, "org-1")
	}
}

func TestMiddleware_EmptySubject(t *testing.T) {
	chain := &AuthChain{
		Authenticators:  []Authenticator{&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{}}}},
		DefaultDecision: No,
	}
	rec := httptest.NewRecorder()
	Middleware(chain, nil)(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMiddleware_CustomChallenger(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	handler := Middleware(chain, nil, WithChallenger(BearerChallenger{Realm: "app"}))(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer realm="app"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

// auditingAuthn installs the audit wrapper and then returns a fixed result,
// the way a mechanism does.
type auditingAuthn struct {
	logger audit.Logger
	result AuthResult
	calls  int
}

func (a *auditingAuthn) Authenticate(ctx context.Context, _ *http.Request) AuthResult {
	a.calls++
	InstallAuditWrapper(ctx, a.logger)
	return a.result
}

func TestInstallAuditWrapper_Idempotent(t *testing.T) {
	rec := &audit.Recorder{}
	first := &auditingAuthn{logger: rec, result: AuthResult{Decision: Abstain}}
	second := &auditingAuthn{logger: rec, result: AuthResult{Decision: No, Err: ErrAuthenticationFailed}}
	chain := &AuthChain{Authenticators: []Authenticator{first, second}, DefaultDecision: No}

	w := httptest.NewRecorder()
	Middleware(chain, nil)(okHandler()).ServeHTTP(w, httptest.NewRequest("POST", "/api/things", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if rec.Len() != 1 {
		t.Fatalf("audit records = %d, want exactly 1", rec.Len())
	}
	r := rec.Records()[0]
	if r.Category != audit.Category || r.Action != audit.ActionAuthenticate || r.Outcome != audit.OutcomeFailure {
		t.Errorf("record = %+v", r)
	}
	if r.Metadata[audit.KeyMethod] != "POST" || r.Metadata[audit.KeyPath] != "/api/things" || r.Metadata[audit.KeyResponseCode] != "401" {
		t.Errorf("metadata = %v", r.Metadata)
	}
	if r.Metadata[audit.KeyErrorMsg] != ErrAuthenticationFailed.Error() {
		t.Errorf("error_msg = %q", r.Metadata[audit.KeyErrorMsg])
	}
}

func TestInstallAuditWrapper_SkipsSuccessStatus(t *testing.T) {
	rec := &audit.Recorder{}
	lenient := func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusNoContent)
	}
	authn := &auditingAuthn{logger: rec, result: AuthResult{Decision: No, Err: ErrAuthenticationFailed}}
	chain := &AuthChain{Authenticators: []Authenticator{authn}, DefaultDecision: No}

	w := httptest.NewRecorder()
	Middleware(chain, nil, WithFailureHandler(lenient))(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if rec.Len() != 0 {
		t.Errorf("audit records = %d, want 0 for status < 400", rec.Len())
	}
}

func TestInstallAuditWrapper_NoSlot(t *testing.T) {
	if InstallAuditWrapper(context.Background(), &audit.Recorder{}) {
		t.Error("installed without a failure slot")
	}
	if FailureHandlerFromContext(context.Background()) != nil {
		t.Error("expected nil failure handler outside middleware")
	}
}

func TestInstallAuditWrapper_ReportsFirstInstall(t *testing.T) {
	ctx, _ := withFailureSlot(context.Background(), DefaultFailureHandler(nil))
	rec := &audit.Recorder{}

	if !InstallAuditWrapper(ctx, rec) {
		t.Error("first install reported false")
	}
	if InstallAuditWrapper(ctx, rec) {
		t.Error("second install reported true")
	}
	if FailureHandlerFromContext(ctx) == nil {
		t.Error("expected failure handler in context")
	}
}
