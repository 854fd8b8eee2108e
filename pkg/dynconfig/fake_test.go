package dynconfig

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeStorage is a single-tenant Storage used by the package tests.
type fakeStorage struct {
	mu      sync.Mutex
	props   map[string]Property
	err     error
	gets    int
	sinceIn []time.Time
	stale   []string
}

func newFakeStorage(props ...Property) *fakeStorage {
	f := &fakeStorage{props: make(map[string]Property)}
	for _, p := range props {
		f.props[p.Name] = p
	}
	return f
}

func (f *fakeStorage) GetConfigProperty(_ context.Context, name string) (*Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.props[name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStorage) SetConfigProperty(_ context.Context, p Property) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[p.Name] = p
	return nil
}

func (f *fakeStorage) DeleteConfigProperty(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.props, name)
	return nil
}

func (f *fakeStorage) GetConfigProperties(context.Context) ([]Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Property, 0, len(f.props))
	for _, p := range f.props {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStorage) GetTenantsWithStaleConfigProperties(_ context.Context, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceIn = append(f.sinceIn, since)
	if f.err != nil {
		return nil, f.err
	}
	return f.stale, nil
}
