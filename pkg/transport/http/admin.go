package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/appcommon/pkg/api"
	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/storage"
	"github.com/rhuss/appcommon/pkg/transport"
)

// ConfigAPI exposes dynamic properties for the caller's tenant:
//
//	GET    /admin/config/properties         list stored properties
//	GET    /admin/config/properties/{name}  one stored property
//	PUT    /admin/config/properties/{name}  set; body {"value": "..."}
//	DELETE /admin/config/properties/{name}  remove
//	GET    /admin/config/definitions        the property index
//	GET    /admin/config/values/{name}      effective value across sources
//
// Only indexed names can be read, written or deleted individually.
type ConfigAPI struct {
	storage     dynconfig.Storage
	index       *dynconfig.PropertyIndex
	sources     *dynconfig.Sources
	maxBodySize int64
	now         func() time.Time
}

// NewConfigAPI creates the admin API. sources may be nil, which disables
// the values endpoint.
func NewConfigAPI(store dynconfig.Storage, index *dynconfig.PropertyIndex, sources *dynconfig.Sources) *ConfigAPI {
	return &ConfigAPI{
		storage:     store,
		index:       index,
		sources:     sources,
		maxBodySize: 64 << 10,
		now:         time.Now,
	}
}

// Register adds the API routes to mux.
func (a *ConfigAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/config/properties", a.handleList)
	mux.HandleFunc("GET /admin/config/properties/{name}", a.handleGet)
	mux.HandleFunc("PUT /admin/config/properties/{name}", a.handlePut)
	mux.HandleFunc("DELETE /admin/config/properties/{name}", a.handleDelete)
	mux.HandleFunc("GET /admin/config/definitions", a.handleDefinitions)
	if a.sources != nil {
		mux.HandleFunc("GET /admin/config/values/{name}", a.handleValue)
	}
}

type propertyBody struct {
	Value *string `json:"value"`
}

func (a *ConfigAPI) handleList(w http.ResponseWriter, r *http.Request) {
	props, err := a.storage.GetConfigProperties(r.Context())
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	if props == nil {
		props = []dynconfig.Property{}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"object": "list", "data": props})
}

func (a *ConfigAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	name, ok := a.indexedName(w, r)
	if !ok {
		return
	}
	prop, err := a.storage.GetConfigProperty(r.Context(), name)
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	if prop == nil {
		transport.WriteAPIError(w, api.NewNotFoundError("property "+name+" is not set"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, prop)
}

func (a *ConfigAPI) handlePut(w http.ResponseWriter, r *http.Request) {
	name, ok := a.indexedName(w, r)
	if !ok {
		return
	}

	var body propertyBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			transport.WriteErrorResponse(w, api.NewInvalidRequestError("", "request body too large"), http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			transport.WriteAPIError(w, api.NewInvalidRequestError("", "request body is empty"))
		default:
			transport.WriteAPIError(w, api.NewInvalidRequestError("", "invalid JSON: "+err.Error()))
		}
		return
	}
	if body.Value == nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("value", "value is required"))
		return
	}

	def, _ := a.index.Definition(name)
	if err := def.Validate(*body.Value); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("value", err.Error()))
		return
	}

	prop := dynconfig.Property{Name: name, Value: *body.Value, ModifiedOn: a.now()}
	if err := a.storage.SetConfigProperty(r.Context(), prop); err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	slog.Info("dynamic property set", "property", name, "tenant", storage.GetTenant(r.Context()))

	if stored, err := a.storage.GetConfigProperty(r.Context(), name); err == nil && stored != nil {
		prop = *stored
	}
	transport.WriteJSON(w, http.StatusOK, prop)
}

func (a *ConfigAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := a.indexedName(w, r)
	if !ok {
		return
	}
	if err := a.storage.DeleteConfigProperty(r.Context(), name); err != nil {
		a.writeStorageError(w, r, err)
		return
	}
	slog.Info("dynamic property deleted", "property", name, "tenant", storage.GetTenant(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (a *ConfigAPI) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	names := a.index.Names()
	defs := make([]dynconfig.PropertyDef, 0, len(names))
	for _, n := range names {
		d, _ := a.index.Definition(n)
		defs = append(defs, d)
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"object": "list", "data": defs})
}

// handleValue resolves an indexed property through every source. Names
// outside the index are never looked up, so environment variables and static
// properties stay private.
func (a *ConfigAPI) handleValue(w http.ResponseWriter, r *http.Request) {
	name, ok := a.indexedName(w, r)
	if !ok {
		return
	}
	v, ok := a.sources.Lookup(r.Context(), name)
	if !ok {
		transport.WriteAPIError(w, api.NewNotFoundError("property "+name+" has no value"))
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"name": name, "value": v})
}

// indexedName returns the normalized path name, or writes 404 when the
// name is not dynamic.
func (a *ConfigAPI) indexedName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := dynconfig.NormalizePropertyName(r.PathValue("name"))
	if !a.index.HasProperty(name) {
		transport.WriteAPIError(w, api.NewNotFoundError("property "+name+" is not a dynamic property"))
		return "", false
	}
	return name, true
}

func (a *ConfigAPI) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError(err.Error()))
		return
	}
	slog.Error("config storage failure", "path", r.URL.Path, "error", err)
	transport.WriteAPIError(w, api.NewServerError("config storage failure"))
}
