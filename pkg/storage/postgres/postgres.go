// Package postgres provides a PostgreSQL implementation of dynconfig.Storage.
// Connections are pooled by pgx/v5 and every statement goes through the
// storage/query helpers over database/sql.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/rhuss/appcommon/pkg/debug"
	"github.com/rhuss/appcommon/pkg/dynconfig"
	"github.com/rhuss/appcommon/pkg/storage"
	"github.com/rhuss/appcommon/pkg/storage/query"
)

// Schema is the DDL of the table the store reads and writes. modified_on
// holds epoch milliseconds. Creating it is left to the operator.
const Schema = `CREATE TABLE IF NOT EXISTS config (
	tenant_id   VARCHAR(128) NOT NULL,
	pname       VARCHAR(255) NOT NULL,
	pvalue      VARCHAR(1024) NOT NULL,
	modified_on BIGINT NOT NULL,
	PRIMARY KEY (tenant_id, pname)
)`

const (
	sqlSelectProperty = `SELECT pname, pvalue, modified_on FROM config WHERE tenant_id = $1 AND pname = $2`
	sqlUpsertProperty = `INSERT INTO config (tenant_id, pname, pvalue, modified_on) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, pname) DO UPDATE SET pvalue = EXCLUDED.pvalue, modified_on = EXCLUDED.modified_on`
	sqlDeleteProperty   = `DELETE FROM config WHERE tenant_id = $1 AND pname = $2`
	sqlSelectProperties = `SELECT pname, pvalue, modified_on FROM config WHERE tenant_id = $1 ORDER BY pname`
	sqlSelectStale      = `SELECT DISTINCT tenant_id FROM config WHERE modified_on >= $1 ORDER BY tenant_id`
)

// Store is a PostgreSQL-backed dynconfig.Storage.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
	h    *query.Handle
	now  func() time.Time
}

// Ensure Store implements dynconfig.Storage at compile time.
var _ dynconfig.Storage = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	return &Store{
		pool: pool,
		db:   db,
		h:    query.New(db),
		now:  time.Now,
	}, nil
}

// Handle exposes the query helper bound to the store's connection pool.
func (s *Store) Handle() *query.Handle { return s.h }

// GetConfigProperty returns the property for the context's tenant, or nil
// if it is not stored.
func (s *Store) GetConfigProperty(ctx context.Context, name string) (*dynconfig.Property, error) {
	p, found, err := query.Map(s.h.CreateQuery(sqlSelectProperty).
		BindString(0, storage.GetTenant(ctx)).
		BindString(1, name), mapProperty).
		FindOne(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// SetConfigProperty inserts or replaces a property, stamping it with the
// current time.
func (s *Store) SetConfigProperty(ctx context.Context, p dynconfig.Property) error {
	tenant := storage.GetTenant(ctx)
	_, err := s.h.CreateUpdate(sqlUpsertProperty).
		BindString(0, tenant).
		BindString(1, p.Name).
		BindString(2, p.Value).
		BindLong(3, s.now().UnixMilli()).
		Execute(ctx)
	if err != nil {
		return err
	}
	debug.Log("storage", "config property stored", "tenant", tenant, "property", p.Name)
	return nil
}

// DeleteConfigProperty removes a property. Deleting an absent property is
// not an error.
func (s *Store) DeleteConfigProperty(ctx context.Context, name string) error {
	return s.h.CreateUpdate(sqlDeleteProperty).
		BindString(0, storage.GetTenant(ctx)).
		BindString(1, name).
		ExecuteNoUpdate(ctx)
}

// GetConfigProperties returns the context tenant's properties ordered by name.
func (s *Store) GetConfigProperties(ctx context.Context) ([]dynconfig.Property, error) {
	return query.Map(s.h.CreateQuery(sqlSelectProperties).
		BindString(0, storage.GetTenant(ctx)), mapProperty).
		List(ctx)
}

// GetTenantsWithStaleConfigProperties returns every tenant with a property
// modified at or after since.
func (s *Store) GetTenantsWithStaleConfigProperties(ctx context.Context, since time.Time) ([]string, error) {
	return query.MapTo[string](s.h.CreateQuery(sqlSelectStale).
		BindLong(0, since.UnixMilli())).
		List(ctx)
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the database handle and the connection pool.
func (s *Store) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func mapProperty(rs *sql.Rows) (dynconfig.Property, error) {
	var p dynconfig.Property
	var modified int64
	if err := rs.Scan(&p.Name, &p.Value, &modified); err != nil {
		return p, err
	}
	p.ModifiedOn = time.UnixMilli(modified)
	return p, nil
}
