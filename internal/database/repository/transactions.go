package repository

import (
	"context"
	"database/sql"
	"time"
)

// TransactionRepo is the deduplicated ledger of ingested bank transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, account_id, external_id, transaction_date, description, amount, balance,
 direction, category, reference, raw_payload, reconciled, created_at`

// Exists reports whether the uniqueness key (account, external id, date) is
// already stored.
func (r *TransactionRepo) Exists(ctx context.Context, accountID, externalID string, date time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM bank_transactions
	WHERE account_id = ? AND external_id = ? AND transaction_date = ?`,
		accountID, externalID, date).Scan(&n)
	return n > 0, err
}

// Insert stores a new transaction. A row that collides with the uniqueness
// key is reported as ErrDuplicate.
func (r *TransactionRepo) Insert(ctx context.Context, t BankTransaction) error {
	var raw interface{}
	if len(t.RawPayload) > 0 {
		raw = []byte(t.RawPayload)
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO bank_transactions(`+transactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		t.ID, t.AccountID, t.ExternalID, t.Date, t.Description, t.Amount, t.Balance,
		t.Direction, t.Category, t.Reference, raw, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Get returns nil, nil when the transaction does not exist.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*BankTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListUnreconciledCredits returns the newest unreconciled credits of an
// account, bounded by limit.
func (r *TransactionRepo) ListUnreconciledCredits(ctx context.Context, accountID string, limit int) ([]BankTransaction, error) {
	return r.list(ctx, `
	SELECT `+transactionColumns+` FROM bank_transactions
	WHERE account_id = ? AND reconciled = 0 AND direction = ?
	ORDER BY transaction_date DESC, created_at DESC
	LIMIT ?`, accountID, Credit, limit)
}

// ListUnreconciled returns the newest unreconciled transactions of either
// direction.
func (r *TransactionRepo) ListUnreconciled(ctx context.Context, accountID string, limit int) ([]BankTransaction, error) {
	return r.list(ctx, `
	SELECT `+transactionColumns+` FROM bank_transactions
	WHERE account_id = ? AND reconciled = 0
	ORDER BY transaction_date DESC, created_at DESC
	LIMIT ?`, accountID, limit)
}

func (r *TransactionRepo) ListByAccount(ctx context.Context, accountID string) ([]BankTransaction, error) {
	return r.list(ctx, `
	SELECT `+transactionColumns+` FROM bank_transactions
	WHERE account_id = ?
	ORDER BY transaction_date DESC, created_at DESC`, accountID)
}

func (r *TransactionRepo) list(ctx context.Context, query string, args ...interface{}) ([]BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkReconciled flips the reconciled flag from false to true. It never
// clears the flag; a transaction already reconciled yields ErrAlreadyReconciled.
func (r *TransactionRepo) MarkReconciled(ctx context.Context, q DBTX, id string) error {
	res, err := q.ExecContext(ctx, `UPDATE bank_transactions SET reconciled = 1 WHERE id = ? AND reconciled = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyReconciled
	}
	return nil
}

// Stats counts all, reconciled and pending transactions for an account.
func (r *TransactionRepo) Stats(ctx context.Context, accountID string) (TransactionStats, error) {
	var s TransactionStats
	err := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*), COALESCE(SUM(reconciled), 0)
	FROM bank_transactions WHERE account_id = ?`, accountID).Scan(&s.Total, &s.Reconciled)
	if err != nil {
		return TransactionStats{}, err
	}
	s.Pending = s.Total - s.Reconciled
	return s, nil
}

func scanTransaction(row scanner) (BankTransaction, error) {
	var t BankTransaction
	var raw []byte
	var reconciled int
	if err := row.Scan(&t.ID, &t.AccountID, &t.ExternalID, &t.Date, &t.Description, &t.Amount, &t.Balance,
		&t.Direction, &t.Category, &t.Reference, &raw, &reconciled, &t.CreatedAt); err != nil {
		return BankTransaction{}, err
	}
	if len(raw) > 0 {
		t.RawPayload = raw
	}
	t.Reconciled = reconciled == 1
	return t, nil
}
