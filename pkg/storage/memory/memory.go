// Package memory provides an in-memory implementation of dynconfig.Storage
// for testing and single-instance deployments. Properties are lost when the
// process restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/appcommon/pkg/debug"
	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/storage"
)

// Store is a tenant-scoped in-memory property store.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]map[string]dynconfig.Property
	now     func() time.Time
}

// Ensure Store implements dynconfig.Storage at compile time.
var _ dynconfig.Storage = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tenants: make(map[string]map[string]dynconfig.Property),
		now:     time.Now,
	}
}

// GetConfigProperty returns the property for the context's tenant, or nil
// if it is not stored.
func (s *Store) GetConfigProperty(ctx context.Context, name string) (*dynconfig.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.tenants[storage.GetTenant(ctx)][name]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SetConfigProperty inserts or replaces a property. ModifiedOn is set to
// the current time.
func (s *Store) SetConfigProperty(ctx context.Context, p dynconfig.Property) error {
	tenant := storage.GetTenant(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.tenants[tenant]
	if !ok {
		props = make(map[string]dynconfig.Property)
		s.tenants[tenant] = props
	}
	p.ModifiedOn = s.now()
	props[p.Name] = p

	debug.Log("storage", "config property stored", "tenant", tenant, "property", p.Name)
	return nil
}

// DeleteConfigProperty removes a property. Deleting an absent property is
// not an error.
func (s *Store) DeleteConfigProperty(ctx context.Context, name string) error {
	tenant := storage.GetTenant(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tenants[tenant], name)
	if len(s.tenants[tenant]) == 0 {
		delete(s.tenants, tenant)
	}
	return nil
}

// GetConfigProperties returns the context tenant's properties ordered by name.
func (s *Store) GetConfigProperties(ctx context.Context) ([]dynconfig.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props := s.tenants[storage.GetTenant(ctx)]
	result := make([]dynconfig.Property, 0, len(props))
	for _, p := range props {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// GetTenantsWithStaleConfigProperties returns, in sorted order, every tenant
// with a property modified at or after since.
func (s *Store) GetTenantsWithStaleConfigProperties(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tenants []string
	for tenant, props := range s.tenants {
		for _, p := range props {
			if !p.ModifiedOn.Before(since) {
				tenants = append(tenants, tenant)
				break
			}
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
