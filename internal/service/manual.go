package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/matcher"
)

// ManualRequest pairs a transaction with a sale chosen by a person.
type ManualRequest struct {
	TransactionID string `json:"transaction_id"`
	SaleID        string `json:"sale_id"`
	Notes         string `json:"notes"`
	ActorID       string `json:"actor_id"`
}

// ManualReconcile records a reconciliation decided by a person. It has the
// same side effects as an automatic match, with confidence 100 and the
// actor as creator. It is the way out of an ambiguous match.
func (e *Engine) ManualReconcile(ctx context.Context, req ManualRequest) (repository.Reconciliation, error) {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.ActorID = strings.TrimSpace(req.ActorID)
	switch {
	case req.TransactionID == "":
		return repository.Reconciliation{}, fmt.Errorf("%w: transaction id required", ErrValidation)
	case req.SaleID == "":
		return repository.Reconciliation{}, fmt.Errorf("%w: sale id required", ErrValidation)
	case req.ActorID == "":
		return repository.Reconciliation{}, fmt.Errorf("%w: actor required", ErrValidation)
	}

	tx, err := e.transactions.Get(ctx, req.TransactionID)
	if err != nil {
		return repository.Reconciliation{}, fmt.Errorf("load transaction: %w", err)
	}
	if tx == nil {
		return repository.Reconciliation{}, fmt.Errorf("transaction %s: %w", req.TransactionID, ErrNotFound)
	}
	if tx.Reconciled {
		return repository.Reconciliation{}, fmt.Errorf("transaction %s: %w", tx.ID, ErrAlreadyReconciled)
	}
	sale, err := e.sales.Get(ctx, req.SaleID)
	if err != nil {
		return repository.Reconciliation{}, fmt.Errorf("load sale: %w", err)
	}
	if sale == nil {
		return repository.Reconciliation{}, fmt.Errorf("sale %s: %w", req.SaleID, ErrNotFound)
	}
	if sale.PaymentStatus != repository.PaymentPending {
		return repository.Reconciliation{}, fmt.Errorf("sale %s is %s: %w", sale.ID, sale.PaymentStatus, ErrSaleNotPending)
	}

	rec, err := e.apply(ctx, tx.AccountID, *tx, *sale, repository.ReconcileManual, matcher.ManualConfidence, req.Notes, req.ActorID)
	if err != nil {
		if errors.Is(err, repository.ErrSaleClaimed) {
			err = fmt.Errorf("sale %s: %w", sale.ID, ErrSaleNotPending)
		}
		return repository.Reconciliation{}, err
	}
	e.metrics.IncMatch(string(repository.ReconcileManual))
	e.log.Info("manual reconciliation",
		zap.String("account_id", tx.AccountID),
		zap.String("transaction_id", tx.ID),
		zap.String("sale_id", sale.ID),
		zap.String("actor", req.ActorID))
	return rec, nil
}
