package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jask/bankrecon/internal/database"
)

// SaleRepo is the engine's narrow view of the POS sales table. It only
// ever writes payment status, payment date and payment reference.
type SaleRepo struct {
	db *sql.DB
}

func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

const saleColumns = `id, external_reference, total, payment_status, payment_method,
 payment_reference, client_name, payment_date, created_at`

// Insert is used by seeding and tests; the engine itself never creates sales.
// Timestamps are stored normalized so created_at orders correctly as text.
func (r *SaleRepo) Insert(ctx context.Context, s Sale) error {
	s.CreatedAt = database.Normalize(s.CreatedAt)
	if s.PaymentDate != nil {
		paid := database.Normalize(*s.PaymentDate)
		s.PaymentDate = &paid
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sales(`+saleColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ExternalReference, s.Total, s.PaymentStatus, s.PaymentMethod,
		s.PaymentReference, s.ClientName, s.PaymentDate, s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Get returns nil, nil when the sale does not exist.
func (r *SaleRepo) Get(ctx context.Context, id string) (*Sale, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	s, err := scanSale(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindPendingByMethod returns the newest pending sales paid with one of
// methods, bounded by limit.
func (r *SaleRepo) FindPendingByMethod(ctx context.Context, methods []PaymentMethod, limit int) ([]Sale, error) {
	if len(methods) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(methods)), ",")
	args := make([]interface{}, 0, len(methods)+2)
	args = append(args, PaymentPending)
	for _, m := range methods {
		args = append(args, m)
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
	SELECT `+saleColumns+` FROM sales
	WHERE payment_status = ? AND payment_method IN (`+placeholders+`)
	ORDER BY created_at DESC, id DESC
	LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkPaid settles a pending sale. Only a sale still pending can be
// claimed; anything else yields ErrSaleNotPending so two racing matches
// cannot both pay the same sale.
func (r *SaleRepo) MarkPaid(ctx context.Context, q DBTX, saleID string, paidAt time.Time, reference string) error {
	res, err := q.ExecContext(ctx, `
	UPDATE sales
	SET payment_status = ?, payment_date = ?, payment_reference = ?
	WHERE id = ? AND payment_status = ?`,
		PaymentPaid, database.Normalize(paidAt), reference, saleID, PaymentPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSaleNotPending
	}
	return nil
}

func scanSale(row scanner) (Sale, error) {
	var s Sale
	var paid sql.NullTime
	if err := row.Scan(&s.ID, &s.ExternalReference, &s.Total, &s.PaymentStatus, &s.PaymentMethod,
		&s.PaymentReference, &s.ClientName, &paid, &s.CreatedAt); err != nil {
		return Sale{}, err
	}
	if paid.Valid {
		t := paid.Time
		s.PaymentDate = &t
	}
	return s, nil
}
