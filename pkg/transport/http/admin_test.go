package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	gohttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/storage"
	"github.com/rhuss/appcommon/pkg/storage/memory"
)

func newTestAPI(t *testing.T) (*ConfigAPI, *memory.Store, gohttp.Handler) {
	t.Helper()
	store := memory.New()
	index := dynconfig.NewPropertyIndexFromDefs(
		dynconfig.PropertyDef{Name: "registry.download.href.ttl", Type: dynconfig.TypeLong},
		dynconfig.PropertyDef{Name: "registry.ui.title", Type: dynconfig.TypeString, Description: "UI title"},
	)
	sources := dynconfig.NewSources("dev",
		dynconfig.NewDynamicSource(store, index),
		dynconfig.NewMapSource("file", dynconfig.FileOrdinal, map[string]string{
			"registry.name":     "demo",
			"registry.ui.title": "Registry",
		}),
	)

	a := NewConfigAPI(store, index, sources)
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	mux := gohttp.NewServeMux()
	a.Register(mux)
	return a, store, mux
}

func do(h gohttp.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *gohttp.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bytesContains(b []byte, s string) bool {
	return bytes.Contains(b, []byte(s))
}

func TestConfigAPI_PutGetDelete(t *testing.T) {
	_, _, h := newTestAPI(t)

	rec := do(h, "PUT", "/admin/config/properties/registry.download.href.ttl", `{"value":"30"}`)
	if rec.Code != gohttp.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got dynconfig.Property
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "registry.download.href.ttl" || got.Value != "30" {
		t.Errorf("PUT response = %+v", got)
	}

	rec = do(h, "GET", "/admin/config/properties/registry.download.href.ttl", "")
	if rec.Code != gohttp.StatusOK || !bytesContains(rec.Body.Bytes(), `"value":"30"`) {
		t.Errorf("GET = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, "GET", "/admin/config/properties", "")
	var list struct {
		Data []dynconfig.Property `json:"data"`
	}
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Data) != 1 {
		t.Errorf("list = %+v", list.Data)
	}

	if rec = do(h, "DELETE", "/admin/config/properties/registry.download.href.ttl", ""); rec.Code != gohttp.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	if rec = do(h, "GET", "/admin/config/properties/registry.download.href.ttl", ""); rec.Code != gohttp.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rec.Code)
	}
	if rec = do(h, "DELETE", "/admin/config/properties/registry.download.href.ttl", ""); rec.Code != gohttp.StatusNoContent {
		t.Errorf("second DELETE status = %d, want 204", rec.Code)
	}
}

func TestConfigAPI_ProfilePrefixedName(t *testing.T) {
	_, store, h := newTestAPI(t)

	if rec := do(h, "PUT", "/admin/config/properties/%25dev.registry.ui.title", `{"value":"Dev"}`); rec.Code != gohttp.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	p, _ := store.GetConfigProperty(context.Background(), "registry.ui.title")
	if p == nil || p.Value != "Dev" {
		t.Errorf("stored = %+v, want normalized name", p)
	}
}

func TestConfigAPI_RejectsUnindexed(t *testing.T) {
	_, store, h := newTestAPI(t)

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		rec := do(h, method, "/admin/config/properties/unknown.key", `{"value":"x"}`)
		if rec.Code != gohttp.StatusNotFound {
			t.Errorf("%s status = %d, want 404", method, rec.Code)
		}
	}
	if p, _ := store.GetConfigProperty(context.Background(), "unknown.key"); p != nil {
		t.Error("unindexed property was stored")
	}
}

func TestConfigAPI_PutValidation(t *testing.T) {
	_, _, h := newTestAPI(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"wrong type", `{"value":"thirty"}`, gohttp.StatusBadRequest},
		{"missing value", `{}`, gohttp.StatusBadRequest},
		{"unknown field", `{"value":"1","extra":true}`, gohttp.StatusBadRequest},
		{"not json", `value=1`, gohttp.StatusBadRequest},
		{"too large", `{"value":"` + strings.Repeat("9", 70<<10) + `"}`, gohttp.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, "PUT", "/admin/config/properties/registry.download.href.ttl", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if rec := do(h, "PUT", "/admin/config/properties/registry.download.href.ttl", ""); rec.Code != gohttp.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", rec.Code)
	}
}

func TestConfigAPI_TenantScoped(t *testing.T) {
	_, _, h := newTestAPI(t)

	withTenant := func(tenant string) gohttp.Handler {
		return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
			h.ServeHTTP(w, r.WithContext(storage.SetTenant(r.Context(), tenant)))
		})
	}

	do(withTenant("org-1"), "PUT", "/admin/config/properties/registry.ui.title", `{"value":"One"}`)

	if rec := do(withTenant("org-2"), "GET", "/admin/config/properties/registry.ui.title", ""); rec.Code != gohttp.StatusNotFound {
		t.Errorf("other tenant status = %d, want 404", rec.Code)
	}
	if rec := do(withTenant("org-1"), "GET", "/admin/config/properties/registry.ui.title", ""); rec.Code != gohttp.StatusOK {
		t.Errorf("own tenant status = %d, want 200", rec.Code)
	}
}

func TestConfigAPI_DefinitionsAndValues(t *testing.T) {
	_, _, h := newTestAPI(t)

	rec := do(h, "GET", "/admin/config/definitions", "")
	var defs struct {
		Data []dynconfig.PropertyDef `json:"data"`
	}
	json.NewDecoder(rec.Body).Decode(&defs)
	if len(defs.Data) != 2 || defs.Data[0].Name != "registry.download.href.ttl" || defs.Data[1].Description != "UI title" {
		t.Errorf("definitions = %+v", defs.Data)
	}

	do(h, "PUT", "/admin/config/properties/registry.download.href.ttl", `{"value":"30"}`)

	for path, want := range map[string]string{
		"/admin/config/values/registry.download.href.ttl": `"value":"30"`,
		"/admin/config/values/registry.ui.title":          `"value":"Registry"`,
	} {
		rec := do(h, "GET", path, "")
		if rec.Code != gohttp.StatusOK || !bytesContains(rec.Body.Bytes(), want) {
			t.Errorf("GET %s = %d %s", path, rec.Code, rec.Body.String())
		}
	}
	for _, name := range []string{"unknown.key", "registry.name"} {
		rec := do(h, "GET", "/admin/config/values/"+name, "")
		if rec.Code != gohttp.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", name, rec.Code)
		}
		if bytesContains(rec.Body.Bytes(), "demo") {
			t.Errorf("GET %s leaked a static property: %s", name, rec.Body.String())
		}
	}
}

func TestConfigAPI_ValuesOnlyForIndexedNames(t *testing.T) {
	t.Setenv("REGISTRY_DB_PASSWORD", "hunter2")
	t.Setenv("REGISTRY_UI_TITLE", "From env")

	store := memory.New()
	index := dynconfig.NewPropertyIndexFromDefs(
		dynconfig.PropertyDef{Name: "registry.ui.title", Type: dynconfig.TypeString},
	)
	sources := dynconfig.NewSources("",
		dynconfig.NewDynamicSource(store, index),
		dynconfig.NewEnvSource(),
	)
	mux := gohttp.NewServeMux()
	NewConfigAPI(store, index, sources).Register(mux)

	for _, name := range []string{"registry.db.password", "REGISTRY_DB_PASSWORD"} {
		rec := do(mux, "GET", "/admin/config/values/"+name, "")
		if rec.Code != gohttp.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", name, rec.Code)
		}
		if bytesContains(rec.Body.Bytes(), "hunter2") {
			t.Errorf("GET %s leaked the environment: %s", name, rec.Body.String())
		}
	}

	rec := do(mux, "GET", "/admin/config/values/registry.ui.title", "")
	if rec.Code != gohttp.StatusOK || !bytesContains(rec.Body.Bytes(), `"value":"From env"`) {
		t.Errorf("indexed name = %d %s", rec.Code, rec.Body.String())
	}
}

// failingStorage fails every call.
type failingStorage struct{ dynconfig.Storage }

func (failingStorage) GetConfigProperties(context.Context) ([]dynconfig.Property, error) {
	return nil, &storage.Error{Reason: "query failed", Cause: errors.New("connection reset")}
}

func TestConfigAPI_StorageFailure(t *testing.T) {
	a := NewConfigAPI(failingStorage{}, dynconfig.NewPropertyIndex(), nil)
	mux := gohttp.NewServeMux()
	a.Register(mux)

	rec := do(mux, "GET", "/admin/config/properties", "")
	if rec.Code != gohttp.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if bytesContains(rec.Body.Bytes(), "connection reset") {
		t.Error("storage error details leaked to the client")
	}
	if rec := do(mux, "GET", "/admin/config/values/x", ""); rec.Code != gohttp.StatusNotFound {
		t.Errorf("values endpoint without sources = %d, want 404", rec.Code)
	}
}
