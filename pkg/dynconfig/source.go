package dynconfig

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rhuss/appcommon/pkg/debug"
	"github.com/rhuss/appcommon/pkg/observability"
)

// Source is a named provider of string configuration values.
type Source interface {
	// Ordinal is the source priority; higher wins.
	Ordinal() int

	// Name identifies the source in diagnostics.
	Name() string

	// PropertyNames lists the names the source can enumerate. Pull-only
	// sources return nil.
	PropertyNames() []string

	// Value returns the value for name and whether the source knows it.
	Value(ctx context.Context, name string) (string, bool)
}

// DynamicOrdinal is the ordinal of DynamicSource, above the environment
// and file sources.
const DynamicOrdinal = 450

// DynamicSource resolves indexed property names from Storage.
type DynamicSource struct {
	storage Storage
	index   *PropertyIndex
}

var _ Source = (*DynamicSource)(nil)

// NewDynamicSource creates a source backed by storage and restricted to the
// names in index. Either may be nil, in which case every lookup reports
// the name as unknown.
func NewDynamicSource(storage Storage, index *PropertyIndex) *DynamicSource {
	return &DynamicSource{storage: storage, index: index}
}

// Ordinal returns DynamicOrdinal.
func (s *DynamicSource) Ordinal() int { return DynamicOrdinal }

// Name returns "DynamicConfigSource".
func (s *DynamicSource) Name() string { return "DynamicConfigSource" }

// PropertyNames returns nil: the source never enumerates.
func (s *DynamicSource) PropertyNames() []string { return nil }

// Index returns the property index the source was built with.
func (s *DynamicSource) Index() *PropertyIndex { return s.index }

// Value looks up name in storage if its normalized form is indexed.
// Storage errors are logged and reported as unknown.
func (s *DynamicSource) Value(ctx context.Context, name string) (string, bool) {
	pname := NormalizePropertyName(name)

	if s.index == nil || !s.index.HasProperty(pname) {
		observability.DynamicConfigLookupsTotal.WithLabelValues("unregistered").Inc()
		return "", false
	}
	if s.storage == nil {
		observability.DynamicConfigLookupsTotal.WithLabelValues("no_storage").Inc()
		return "", false
	}

	prop, err := s.storage.GetConfigProperty(ctx, pname)
	if err != nil {
		slog.Warn("dynamic config lookup failed", "property", pname, "error", err)
		observability.DynamicConfigLookupsTotal.WithLabelValues("error").Inc()
		return "", false
	}
	if prop == nil {
		observability.DynamicConfigLookupsTotal.WithLabelValues("miss").Inc()
		return "", false
	}

	debug.Log("config", "dynamic property resolved", "property", pname)
	observability.DynamicConfigLookupsTotal.WithLabelValues("hit").Inc()
	return prop.Value, true
}

// NormalizePropertyName strips a profile prefix: "%dev.a.b" becomes "a.b".
// Names not starting with "%" are returned unchanged, as are prefixed names
// without a dot.
func NormalizePropertyName(name string) string {
	if !strings.HasPrefix(name, "%") {
		return name
	}
	idx := strings.Index(name, ".")
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}
