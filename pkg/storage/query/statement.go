package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/rhuss/appcommon/pkg/storage"
)

// Preparer creates prepared statements. *sql.DB, *sql.Conn and *sql.Tx
// all satisfy it.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Handle creates queries and updates against a single Preparer.
type Handle struct {
	db Preparer
}

// New creates a Handle over db.
func New(db Preparer) *Handle {
	return &Handle{db: db}
}

// CreateQuery starts a SELECT-style statement.
func (h *Handle) CreateQuery(sqlText string) *Query {
	q := &Query{fetchSize: -1}
	q.Statement = newStatement(h.db, sqlText, q)
	return q
}

// CreateUpdate starts a DML/DDL statement.
func (h *Handle) CreateUpdate(sqlText string) *Update {
	u := &Update{}
	u.Statement = newStatement(h.db, sqlText, u)
	return u
}

// Statement holds SQL text and positional parameters. S is the concrete
// statement type returned by the Bind methods so calls can be chained.
type Statement[S any] struct {
	db     Preparer
	sql    string
	params map[int]any
	self   S
}

func newStatement[S any](db Preparer, sqlText string, self S) Statement[S] {
	return Statement[S]{
		db:     db,
		sql:    sqlText,
		params: make(map[int]any),
		self:   self,
	}
}

// SQL returns the statement text.
func (s *Statement[S]) SQL() string { return s.sql }

// Bind binds an arbitrary driver value at the zero-based position.
func (s *Statement[S]) Bind(position int, value any) S {
	s.params[position] = value
	return s.self
}

// BindString binds a string.
func (s *Statement[S]) BindString(position int, value string) S {
	return s.Bind(position, value)
}

// BindInt binds a 32-bit integer. Use BindLong for wider values.
func (s *Statement[S]) BindInt(position int, value int32) S {
	return s.Bind(position, value)
}

// BindLong binds a 64-bit integer.
func (s *Statement[S]) BindLong(position int, value int64) S {
	return s.Bind(position, value)
}

// BindBool binds a boolean.
func (s *Statement[S]) BindBool(position int, value bool) S {
	return s.Bind(position, value)
}

// BindTime binds a timestamp.
func (s *Statement[S]) BindTime(position int, value time.Time) S {
	return s.Bind(position, value)
}

// BindBytes binds a byte slice.
func (s *Statement[S]) BindBytes(position int, value []byte) S {
	return s.Bind(position, value)
}

// BindNull binds SQL NULL.
func (s *Statement[S]) BindNull(position int) S {
	return s.Bind(position, nil)
}

// args returns the bound parameters in positional order. Positions must
// be contiguous starting at zero.
func (s *Statement[S]) args() ([]any, error) {
	args := make([]any, len(s.params))
	for i := range args {
		v, ok := s.params[i]
		if !ok {
			return nil, storage.NewError("SQL error: missing bind parameter at position %d", i)
		}
		args[i] = v
	}
	return args, nil
}

// prepare binds the parameters and prepares the statement. The caller owns
// the returned statement and must close it.
func (s *Statement[S]) prepare(ctx context.Context) (*sql.Stmt, []any, error) {
	args, err := s.args()
	if err != nil {
		return nil, nil, err
	}
	stmt, err := s.db.PrepareContext(ctx, s.sql)
	if err != nil {
		return nil, nil, storage.Wrap(err)
	}
	return stmt, args, nil
}

// closeStmt closes stmt and folds a close failure into *err unless an
// earlier error is already being returned.
func closeStmt(stmt *sql.Stmt, err *error) {
	if cerr := stmt.Close(); cerr != nil && *err == nil {
		*err = storage.Wrap(cerr)
	}
}
