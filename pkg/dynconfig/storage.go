package dynconfig

import (
	"context"
	"time"
)

// Property is a stored dynamic configuration value.
type Property struct {
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	ModifiedOn time.Time `json:"modifiedOn"`
}

// Storage is the authoritative store for dynamic properties. The tenant is
// taken from the context (see storage.GetTenant).
type Storage interface {
	// GetConfigProperty returns the stored property, or nil if there is none.
	GetConfigProperty(ctx context.Context, name string) (*Property, error)

	// SetConfigProperty inserts or replaces a property.
	SetConfigProperty(ctx context.Context, p Property) error

	// DeleteConfigProperty removes a property. Deleting a missing property
	// is not an error.
	DeleteConfigProperty(ctx context.Context, name string) error

	// GetConfigProperties returns all properties ordered by name.
	GetConfigProperties(ctx context.Context) ([]Property, error)

	// GetTenantsWithStaleConfigProperties returns the tenants with at least
	// one property modified at or after since.
	GetTenantsWithStaleConfigProperties(ctx context.Context, since time.Time) ([]string, error)
}
