package query

import (
	"context"
	"database/sql"
	"iter"

	"github.com/rhuss/appcommon/pkg/storage"
)

// RowMapper converts the current row of rs into a T. It must not advance rs.
type RowMapper[T any] func(rs *sql.Rows) (T, error)

// Query is a statement that returns rows.
type Query struct {
	Statement[*Query]
	fetchSize int
}

// SetFetchSize records the expected number of rows. database/sql and pgx
// stream rows without a fetch size, so the value only sizes List results.
func (q *Query) SetFetchSize(size int) *Query {
	q.fetchSize = size
	return q
}

// Map pairs q with a row mapper. Nothing is executed until a terminal
// operation is called on the result.
func Map[T any](q *Query, mapper RowMapper[T]) *MappedQuery[T] {
	return &MappedQuery[T]{query: q, mapper: mapper}
}

// MapTo maps single-column rows with a built-in mapper. T must be int32,
// int64 or string; any other type fails every terminal operation with a
// storage error.
func MapTo[T any](q *Query) *MappedQuery[T] {
	mapper, err := builtinMapper[T]()
	return &MappedQuery[T]{query: q, mapper: mapper, err: err}
}

func builtinMapper[T any]() (RowMapper[T], error) {
	var zero T
	var m any
	switch any(zero).(type) {
	case int32:
		m = RowMapper[int32](scanColumn[int32])
	case int64:
		m = RowMapper[int64](scanColumn[int64])
	case string:
		m = RowMapper[string](scanColumn[string])
	default:
		return nil, storage.NewError("Row mapper not implemented for type: %T", zero)
	}
	return m.(RowMapper[T]), nil
}

func scanColumn[T any](rs *sql.Rows) (T, error) {
	var v T
	err := rs.Scan(&v)
	return v, err
}

// MappedQuery is a query paired with a row mapper.
type MappedQuery[T any] struct {
	query    *Query
	mapper   RowMapper[T]
	err      error
	streamed bool
}

// run prepares and executes the query, hands the result set to fn and
// releases both the result set and the statement.
func (m *MappedQuery[T]) run(ctx context.Context, fn func(rs *sql.Rows) error) (err error) {
	if m.err != nil {
		return m.err
	}
	stmt, args, err := m.query.prepare(ctx)
	if err != nil {
		return err
	}
	defer closeStmt(stmt, &err)

	rs, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return storage.Wrap(err)
	}
	defer rs.Close()

	if err := fn(rs); err != nil {
		return err
	}
	return storage.Wrap(rs.Err())
}

// next advances rs and maps the row. ok is false when the result set is
// exhausted.
func (m *MappedQuery[T]) next(rs *sql.Rows) (v T, ok bool, err error) {
	if !rs.Next() {
		return v, false, storage.Wrap(rs.Err())
	}
	v, err = m.mapper(rs)
	if err != nil {
		return v, false, storage.Wrap(err)
	}
	return v, true, nil
}

// One returns the only row. Zero or multiple rows are storage errors.
func (m *MappedQuery[T]) One(ctx context.Context) (T, error) {
	var out T
	err := m.run(ctx, func(rs *sql.Rows) error {
		v, ok, err := m.next(rs)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NewError("SQL error: Expected only one result row but got none.")
		}
		if rs.Next() {
			return storage.NewError("SQL error: Expected only one result but got multiple.")
		}
		out = v
		return nil
	})
	return out, err
}

// First returns the first row. Zero rows is a storage error.
func (m *MappedQuery[T]) First(ctx context.Context) (T, error) {
	var out T
	err := m.run(ctx, func(rs *sql.Rows) error {
		v, ok, err := m.next(rs)
		if err != nil {
			return err
		}
		if !ok {
			return storage.NewError("SQL error: Expected AT LEAST one result row but got none.")
		}
		out = v
		return nil
	})
	return out, err
}

// FindOne returns the row if there is exactly one, ok=false if there are
// none, and a storage error if there are several.
func (m *MappedQuery[T]) FindOne(ctx context.Context) (out T, found bool, err error) {
	err = m.run(ctx, func(rs *sql.Rows) error {
		v, ok, err := m.next(rs)
		if err != nil || !ok {
			return err
		}
		if rs.Next() {
			return storage.NewError("SQL error: Expected only one result but got multiple.")
		}
		out, found = v, true
		return nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return out, found, nil
}

// FindFirst returns the first row if any.
func (m *MappedQuery[T]) FindFirst(ctx context.Context) (out T, found bool, err error) {
	err = m.run(ctx, func(rs *sql.Rows) error {
		out, found, err = m.next(rs)
		return err
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return out, found, nil
}

// List returns all rows in result order.
func (m *MappedQuery[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	if m.query.fetchSize > 0 {
		out = make([]T, 0, m.query.fetchSize)
	}
	err := m.run(ctx, func(rs *sql.Rows) error {
		for {
			v, ok, err := m.next(rs)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			out = append(out, v)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream returns a lazy sequence of rows. The statement is executed when
// iteration starts and closed when iteration ends, fails or is stopped
// early. A stream can be ranged over only once; later attempts yield a
// storage error.
func (m *MappedQuery[T]) Stream(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if m.streamed {
			yield(zero, storage.NewError("SQL error: stream has already been consumed"))
			return
		}
		m.streamed = true

		stop := false
		err := m.run(ctx, func(rs *sql.Rows) error {
			for {
				v, ok, err := m.next(rs)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				if !yield(v, nil) {
					stop = true
					return nil
				}
			}
		})
		if err != nil && !stop {
			yield(zero, err)
		}
	}
}
