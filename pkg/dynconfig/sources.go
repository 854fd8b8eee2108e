package dynconfig

import (
	"context"
	"os"
	"sort"
	"strings"
)

// Ordinals of the bundled static sources.
const (
	EnvOrdinal  = 300
	FileOrdinal = 250
)

// Sources looks names up across several sources, highest ordinal first.
// Sources with equal ordinals keep their registration order.
type Sources struct {
	profile string
	sources []Source
}

// NewSources creates an aggregate over sources. If profile is non-empty,
// "%profile.name" is tried across all sources before "name".
func NewSources(profile string, sources ...Source) *Sources {
	sorted := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ordinal() > sorted[j].Ordinal()
	})
	return &Sources{profile: profile, sources: sorted}
}

// Lookup returns the first value found for name.
func (s *Sources) Lookup(ctx context.Context, name string) (string, bool) {
	if s.profile != "" {
		if v, ok := s.lookup(ctx, "%"+s.profile+"."+name); ok {
			return v, true
		}
	}
	return s.lookup(ctx, name)
}

// Get returns the value for name, or def if no source knows it.
func (s *Sources) Get(ctx context.Context, name, def string) string {
	if v, ok := s.Lookup(ctx, name); ok {
		return v
	}
	return def
}

func (s *Sources) lookup(ctx context.Context, name string) (string, bool) {
	for _, src := range s.sources {
		if v, ok := src.Value(ctx, name); ok {
			return v, true
		}
	}
	return "", false
}

// EnvSource reads environment variables. For a name like "app.ui-href"
// it tries "app.ui-href", then "app_ui_href", then "APP_UI_HREF".
type EnvSource struct {
	lookupEnv func(string) (string, bool)
}

var _ Source = (*EnvSource)(nil)

// NewEnvSource creates a source over the process environment.
func NewEnvSource() *EnvSource {
	return &EnvSource{lookupEnv: os.LookupEnv}
}

func (s *EnvSource) Ordinal() int            { return EnvOrdinal }
func (s *EnvSource) Name() string            { return "EnvConfigSource" }
func (s *EnvSource) PropertyNames() []string { return nil }

func (s *EnvSource) Value(_ context.Context, name string) (string, bool) {
	if v, ok := s.lookupEnv(name); ok {
		return v, true
	}
	sanitized := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	if v, ok := s.lookupEnv(sanitized); ok {
		return v, true
	}
	return s.lookupEnv(strings.ToUpper(sanitized))
}

// MapSource serves a fixed set of values, such as the properties section of
// the YAML config file.
type MapSource struct {
	name    string
	ordinal int
	values  map[string]string
}

var _ Source = (*MapSource)(nil)

// NewMapSource copies values into a new source.
func NewMapSource(name string, ordinal int, values map[string]string) *MapSource {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &MapSource{name: name, ordinal: ordinal, values: cp}
}

func (s *MapSource) Ordinal() int { return s.ordinal }
func (s *MapSource) Name() string { return s.name }

func (s *MapSource) PropertyNames() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *MapSource) Value(_ context.Context, name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}
