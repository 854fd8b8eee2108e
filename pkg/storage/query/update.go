package query

import (
	"context"

	"github.com/rhuss/appcommon/pkg/storage"
)

// Update is a statement executed for its side effects.
type Update struct {
	Statement[*Update]
}

// Execute runs the statement and returns the number of affected rows.
func (u *Update) Execute(ctx context.Context) (n int64, err error) {
	stmt, args, err := u.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStmt(stmt, &err)

	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, storage.Wrap(err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, storage.Wrap(err)
	}
	return n, nil
}

// ExecuteNoUpdate runs the statement without reading an affected-row
// count. Intended for DDL and procedural blocks.
func (u *Update) ExecuteNoUpdate(ctx context.Context) (err error) {
	stmt, args, err := u.prepare(ctx)
	if err != nil {
		return err
	}
	defer closeStmt(stmt, &err)

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return storage.Wrap(err)
	}
	return nil
}
