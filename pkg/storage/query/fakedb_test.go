package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
)

// fakeResult is the canned answer for one SQL text.
type fakeResult struct {
	columns  []string
	rows     [][]driver.Value
	affected int64
	err      error // returned by Query/Exec
}

// fakeDB is a minimal database/sql driver that serves canned results and
// counts statement lifecycles.
type fakeDB struct {
	mu       sync.Mutex
	results  map[string]fakeResult
	prepared int
	closed   int
	lastArgs []driver.Value
}

func newFakeDB(t *testing.T, results map[string]fakeResult) (*fakeDB, *sql.DB) {
	t.Helper()
	f := &fakeDB{results: results}
	db := sql.OpenDB(f)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return f, db
}

func (f *fakeDB) openStatements() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prepared - f.closed
}

// driver.Connector
func (f *fakeDB) Connect(context.Context) (driver.Conn, error) { return &fakeConn{db: f}, nil }
func (f *fakeDB) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type fakeConn struct{ db *fakeDB }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if _, ok := c.db.results[query]; !ok {
		return nil, errors.New("syntax error at or near \"" + query + "\"")
	}
	c.db.prepared++
	return &fakeStmt{db: c.db, query: query}, nil
}

func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type fakeStmt struct {
	db     *fakeDB
	query  string
	closed bool
}

func (s *fakeStmt) Close() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.db.closed++
	}
	return nil
}

func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.lastArgs = args
	res := s.db.results[s.query]
	if res.err != nil {
		return nil, res.err
	}
	return driver.RowsAffected(res.affected), nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.lastArgs = args
	res := s.db.results[s.query]
	if res.err != nil {
		return nil, res.err
	}
	return &fakeRows{columns: res.columns, rows: res.rows}, nil
}

type fakeRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// rowsOf builds single-column rows.
func rowsOf(vals ...driver.Value) [][]driver.Value {
	out := make([][]driver.Value, len(vals))
	for i, v := range vals {
		out[i] = []driver.Value{v}
	}
	return out
}
