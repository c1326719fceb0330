package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/matcher"
)

// MatchSummary describes one reconciliation created during a pass.
type MatchSummary struct {
	TransactionID string `json:"transaction_id"`
	SaleID        string `json:"sale_id"`
	Amount        string `json:"amount"`
	Confidence    int    `json:"confidence"`
}

// ReconcileResult counts the outcome of a reconcile pass. Conflicts are
// matches dropped because another run claimed the sale or transaction first.
type ReconcileResult struct {
	Processed int            `json:"processed"`
	Matched   int            `json:"matched"`
	Ambiguous int            `json:"ambiguous"`
	Unmatched int            `json:"unmatched"`
	Conflicts int            `json:"conflicts"`
	Matches   []MatchSummary `json:"matches,omitempty"`
}

// ReconcileAccount matches the account's newest unreconciled credits
// against the newest pending sales. A credit with exactly one candidate is
// reconciled automatically; credits with several candidates are queued for
// review.
func (e *Engine) ReconcileAccount(ctx context.Context, accountID string) (ReconcileResult, error) {
	var res ReconcileResult
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return res, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	txs, err := e.transactions.ListUnreconciledCredits(ctx, accountID, e.matchLimit)
	if err != nil {
		return res, fmt.Errorf("list credits: %w", err)
	}
	res.Processed = len(txs)
	if len(txs) == 0 {
		return res, nil
	}
	sales, err := e.sales.FindPendingByMethod(ctx, repository.ReconcilableMethods, e.matchLimit)
	if err != nil {
		return res, fmt.Errorf("list pending sales: %w", err)
	}

	log := e.log.With(zap.String("account_id", accountID))
	out := e.matcher.Run(txs, sales)
	res.Unmatched = len(out.Unmatched)

	for _, m := range out.Matches {
		_, err := e.apply(ctx, accountID, m.Transaction, m.Sale, repository.ReconcileAuto, m.Confidence, "", repository.SystemActor)
		if isClaimConflict(err) {
			res.Conflicts++
			e.metrics.IncConflict()
			log.Info("match lost to concurrent claim",
				zap.String("transaction_id", m.Transaction.ID),
				zap.String("sale_id", m.Sale.ID),
				zap.Error(err))
			continue
		}
		if err != nil {
			return res, err
		}
		res.Matched++
		res.Matches = append(res.Matches, MatchSummary{
			TransactionID: m.Transaction.ID,
			SaleID:        m.Sale.ID,
			Amount:        m.Transaction.Amount.StringFixed(2),
			Confidence:    m.Confidence,
		})
		e.metrics.IncMatch(string(repository.ReconcileAuto))
	}

	for _, amb := range out.Ambiguous {
		if err := e.queueReview(ctx, accountID, amb); err != nil {
			return res, err
		}
		res.Ambiguous++
		ids := candidateIDs(amb)
		log.Info("ambiguous match queued for review",
			zap.String("transaction_id", amb.Transaction.ID),
			zap.Strings("candidates", ids))
	}
	e.metrics.AddAmbiguous(res.Ambiguous)

	for _, tx := range out.Unmatched {
		if tx.Direction != repository.Credit {
			continue
		}
		expired, err := e.reconciliations.ExpireReview(ctx, tx.ID, e.clock())
		if err != nil {
			return res, fmt.Errorf("expire review: %w", err)
		}
		if expired {
			log.Info("review expired, no candidate sales left", zap.String("transaction_id", tx.ID))
		}
	}
	return res, nil
}

// apply records a match: the transaction is flagged reconciled, the audit
// row is appended, the sale is marked paid and any open review is closed.
// All of it commits together or not at all.
func (e *Engine) apply(ctx context.Context, accountID string, tx repository.BankTransaction, sale repository.Sale,
	kind repository.ReconciliationType, confidence int, notes, actor string) (repository.Reconciliation, error) {
	now := e.clock()
	rec := repository.Reconciliation{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		TransactionID: tx.ID,
		SaleID:        sale.ID,
		Type:          kind,
		Confidence:    confidence,
		Notes:         notes,
		CreatedBy:     actor,
		CreatedAt:     now,
	}
	reference := tx.Reference
	if reference == "" {
		reference = tx.ExternalID
	}
	err := database.WithTx(ctx, e.db, func(q *sql.Tx) error {
		if err := e.transactions.MarkReconciled(ctx, q, tx.ID); err != nil {
			return err
		}
		if err := e.reconciliations.Insert(ctx, q, rec); err != nil {
			return err
		}
		if err := e.sales.MarkPaid(ctx, q, sale.ID, tx.Date, reference); err != nil {
			return err
		}
		return e.reconciliations.ResolveReview(ctx, q, tx.ID, now)
	})
	if err != nil {
		return repository.Reconciliation{}, err
	}
	return rec, nil
}

func (e *Engine) queueReview(ctx context.Context, accountID string, amb matcher.Ambiguous) error {
	now := e.clock()
	best := 0.0
	for _, c := range amb.Candidates {
		if c.Similarity > best {
			best = c.Similarity
		}
	}
	err := e.reconciliations.UpsertReview(ctx, repository.MatchReview{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		TransactionID:    amb.Transaction.ID,
		CandidateSaleIDs: candidateIDs(amb),
		BestSimilarity:   best,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return fmt.Errorf("queue review: %w", err)
	}
	return nil
}

func candidateIDs(amb matcher.Ambiguous) []string {
	ids := make([]string, 0, len(amb.Candidates))
	for _, c := range amb.Candidates {
		ids = append(ids, c.Sale.ID)
	}
	return ids
}

func isClaimConflict(err error) bool {
	return errors.Is(err, repository.ErrAlreadyReconciled) ||
		errors.Is(err, repository.ErrSaleNotPending) ||
		errors.Is(err, repository.ErrSaleClaimed)
}
