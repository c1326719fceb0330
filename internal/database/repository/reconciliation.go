package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// ReconciliationRepo stores the append-only match audit log and the queue
// of ambiguous transactions awaiting review.
type ReconciliationRepo struct{ db *sql.DB }

func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo { return &ReconciliationRepo{db: db} }

const reconciliationColumns = `id, account_id, transaction_id, sale_id, type, confidence, notes, created_by, created_at`

// Insert appends a reconciliation. A transaction or sale that already has
// one is rejected.
func (r *ReconciliationRepo) Insert(ctx context.Context, q DBTX, rec Reconciliation) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO reconciliations(`+reconciliationColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.TransactionID, rec.SaleID, rec.Type, rec.Confidence,
		rec.Notes, rec.CreatedBy, rec.CreatedAt)
	if isUniqueViolation(err) {
		return ErrSaleClaimed
	}
	return err
}

// GetByTransaction returns nil, nil when the transaction has no reconciliation.
func (r *ReconciliationRepo) GetByTransaction(ctx context.Context, transactionID string) (*Reconciliation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reconciliationColumns+` FROM reconciliations WHERE transaction_id = ?`, transactionID)
	rec, err := scanReconciliation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *ReconciliationRepo) ListRecent(ctx context.Context, accountID string, limit int) ([]Reconciliation, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+reconciliationColumns+` FROM reconciliations
	WHERE account_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanReconciliation(row scanner) (Reconciliation, error) {
	var rec Reconciliation
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.TransactionID, &rec.SaleID, &rec.Type,
		&rec.Confidence, &rec.Notes, &rec.CreatedBy, &rec.CreatedAt)
	return rec, err
}

// UpsertReview queues an ambiguous transaction, refreshing its candidate
// list when it is already queued. An expired review is reopened; a resolved
// one is left alone.
func (r *ReconciliationRepo) UpsertReview(ctx context.Context, mr MatchReview) error {
	ids, err := json.Marshal(mr.CandidateSaleIDs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO match_reviews(id, account_id, transaction_id, candidate_sale_ids, best_similarity, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, 'pending', ?, ?)
	ON CONFLICT(transaction_id) DO UPDATE SET
	 candidate_sale_ids=excluded.candidate_sale_ids,
	 best_similarity=excluded.best_similarity,
	 status='pending',
	 updated_at=excluded.updated_at
	WHERE match_reviews.status IN ('pending', 'expired')`,
		mr.ID, mr.AccountID, mr.TransactionID, string(ids), mr.BestSimilarity, mr.CreatedAt, mr.UpdatedAt)
	return err
}

func (r *ReconciliationRepo) ListPendingReviews(ctx context.Context, accountID string) ([]MatchReview, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, account_id, transaction_id, candidate_sale_ids, best_similarity, status, created_at, updated_at
	FROM match_reviews
	WHERE account_id = ? AND status = 'pending'
	ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchReview
	for rows.Next() {
		var mr MatchReview
		var ids string
		if err := rows.Scan(&mr.ID, &mr.AccountID, &mr.TransactionID, &ids, &mr.BestSimilarity,
			&mr.Status, &mr.CreatedAt, &mr.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &mr.CandidateSaleIDs); err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, rows.Err()
}

// ResolveReview closes the review of a transaction once it is reconciled.
// It is a no-op when the transaction was never queued.
func (r *ReconciliationRepo) ResolveReview(ctx context.Context, q DBTX, transactionID string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
	UPDATE match_reviews SET status = 'resolved', updated_at = ?
	WHERE transaction_id = ? AND status = 'pending'`, at, transactionID)
	return err
}

// ExpireReview closes a pending review whose candidates are all gone. It
// reports whether a review was closed.
func (r *ReconciliationRepo) ExpireReview(ctx context.Context, transactionID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE match_reviews SET status = 'expired', candidate_sale_ids = '[]', updated_at = ?
	WHERE transaction_id = ? AND status = 'pending'`, at, transactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
