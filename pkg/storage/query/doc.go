// Package query is a thin prepared-statement helper over database/sql.
//
// A Handle creates Query and Update values bound to a Preparer (*sql.DB,
// *sql.Conn or *sql.Tx). Parameters are bound by zero-based position and
// sent as $1..$n. Queries are mapped to typed results with Map or MapTo and
// finished with a terminal operation (One, First, FindOne, FindFirst, List,
// Stream). Every terminal operation prepares its statement, traverses the
// result set and closes the statement before returning.
//
// All errors returned by this package match storage.ErrStorage.
//
// Handles are per-connection and not safe for concurrent use.
package query
