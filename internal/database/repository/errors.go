package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate row")
	// ErrAlreadyReconciled is returned when a transaction was claimed by another match.
	ErrAlreadyReconciled = errors.New("transaction already reconciled")
	// ErrSaleNotPending is returned when a sale can no longer be marked paid.
	ErrSaleNotPending = errors.New("sale is not pending")
	// ErrSaleClaimed is returned when a sale already has a reconciliation.
	ErrSaleClaimed = errors.New("sale already reconciled")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository writes can
// join a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
