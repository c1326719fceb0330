package repository

import (
	"context"
	"database/sql"
	"time"
)

// AccountRepo handles bank accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, institution_code, masked_account_number, account_kind,
 credentials_ciphertext, credentials_nonce, credentials_salt, active,
 last_sync_at, sync_status, last_error, created_at, updated_at`

func (r *AccountRepo) Insert(ctx context.Context, a BankAccount) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO bank_accounts(`+accountColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.InstitutionCode, a.MaskedAccountNumber, a.AccountKind,
		a.CredentialsCiphertext, a.CredentialsNonce, a.CredentialsSalt, boolToInt(a.Active),
		a.LastSyncAt, a.SyncStatus, a.LastError, a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Get returns nil, nil when the account does not exist.
func (r *AccountRepo) Get(ctx context.Context, id string) (*BankAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListActive returns active accounts in creation order, which is the order
// batch syncs visit them.
func (r *AccountRepo) ListActive(ctx context.Context) ([]BankAccount, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM bank_accounts WHERE active = 1 ORDER BY created_at ASC, id ASC`)
}

func (r *AccountRepo) List(ctx context.Context) ([]BankAccount, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM bank_accounts ORDER BY created_at ASC, id ASC`)
}

func (r *AccountRepo) list(ctx context.Context, query string) ([]BankAccount, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkSyncSuccess records a completed sync and clears the last error.
func (r *AccountRepo) MarkSyncSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_accounts
	SET sync_status = ?, last_sync_at = ?, last_error = NULL, updated_at = ?
	WHERE id = ?`, SyncSuccess, at, at, id)
	return err
}

// MarkSyncError records a failed sync. last_sync_at keeps the last
// successful sync time.
func (r *AccountRepo) MarkSyncError(ctx context.Context, id string, msg string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE bank_accounts
	SET sync_status = ?, last_error = ?, updated_at = ?
	WHERE id = ?`, SyncError, msg, at, id)
	return err
}

// SetActive toggles scheduling for an account. Accounts are never deleted.
func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE bank_accounts SET active = ?, updated_at = ? WHERE id = ?`, boolToInt(active), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanAccount(row scanner) (BankAccount, error) {
	var a BankAccount
	var active int
	var lastSync sql.NullTime
	var lastErr sql.NullString
	if err := row.Scan(&a.ID, &a.InstitutionCode, &a.MaskedAccountNumber, &a.AccountKind,
		&a.CredentialsCiphertext, &a.CredentialsNonce, &a.CredentialsSalt, &active,
		&lastSync, &a.SyncStatus, &lastErr, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return BankAccount{}, err
	}
	a.Active = active == 1
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSyncAt = &t
	}
	if lastErr.Valid {
		a.LastError = &lastErr.String
	}
	return a, nil
}
