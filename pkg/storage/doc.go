// Package storage provides utilities shared across storage adapter
// implementations, including the storage error type and tenant context
// helpers.
//
// Storage adapters (memory, postgres) implement the dynconfig.Storage
// interface defined in pkg/dynconfig. The query subpackage holds the
// prepared-statement helper the SQL adapters are built on.
package storage
