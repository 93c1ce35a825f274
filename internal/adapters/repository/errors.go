package repository

import (
	"database/sql"
	"errors"

	"github.com/okian/arcade/internal/domain/apperr"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrOpen wraps failures while opening or migrating the database.
var ErrOpen = errors.New("open database")

// classify maps driver errors onto the error taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return apperr.WrapKind(op, apperr.KindNotFound, err)
	case isConstraint(err):
		return apperr.WrapKind(op, apperr.KindBadRequest, err)
	default:
		return apperr.Wrap(op, err)
	}
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		sqlite3.SQLITE_CONSTRAINT_CHECK:
		return true
	}
	return false
}
