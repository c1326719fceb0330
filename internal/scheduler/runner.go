// Package scheduler drives batch syncs and reconcile passes over every
// active account.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/logging"
	"github.com/jask/bankrecon/internal/service"
)

// Engine is the part of service.Engine a batch needs.
type Engine interface {
	SyncAccount(ctx context.Context, accountID string) (service.SyncResult, error)
	ReconcileAccount(ctx context.Context, accountID string) (service.ReconcileResult, error)
}

// AccountLister lists the accounts a batch visits.
type AccountLister interface {
	ListActive(ctx context.Context) ([]repository.BankAccount, error)
}

// AccountOutcome is one account's part of a batch.
type AccountOutcome struct {
	AccountID   string                   `json:"account_id"`
	Institution string                   `json:"institution"`
	Success     bool                     `json:"success"`
	Sync        *service.SyncResult      `json:"sync,omitempty"`
	Reconcile   *service.ReconcileResult `json:"reconcile,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// BatchResult summarises a pass over all active accounts.
type BatchResult struct {
	Accounts        int              `json:"accounts"`
	Succeeded       int              `json:"succeeded"`
	Failed          int              `json:"failed"`
	NewTransactions int              `json:"new_transactions"`
	Matched         int              `json:"matched"`
	Outcomes        []AccountOutcome `json:"outcomes"`
}

// Runner visits accounts one at a time, waiting Delay between accounts so
// institutions are not hit in bursts. A failing or panicking account is
// recorded and the batch moves on.
type Runner struct {
	Engine   Engine
	Accounts AccountLister
	Delay    time.Duration
	Logger   *zap.Logger
	// Sleep waits between accounts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// SyncAll syncs every active account sequentially.
func (r *Runner) SyncAll(ctx context.Context) (BatchResult, error) {
	return r.each(ctx, "sync", func(ctx context.Context, acct repository.BankAccount) AccountOutcome {
		out := AccountOutcome{AccountID: acct.ID, Institution: acct.InstitutionCode}
		res, err := r.Engine.SyncAccount(ctx, acct.ID)
		out.Sync = &res
		out.Success = err == nil && res.Success
		if err != nil {
			out.Error = err.Error()
		}
		return out
	})
}

// ReconcileAll re-runs matching for every active account. It picks up
// transactions imported outside a sync and sales created after ingestion.
func (r *Runner) ReconcileAll(ctx context.Context) (BatchResult, error) {
	return r.each(ctx, "reconcile", func(ctx context.Context, acct repository.BankAccount) AccountOutcome {
		out := AccountOutcome{AccountID: acct.ID, Institution: acct.InstitutionCode}
		res, err := r.Engine.ReconcileAccount(ctx, acct.ID)
		out.Reconcile = &res
		out.Success = err == nil
		if err != nil {
			out.Error = err.Error()
		}
		return out
	})
}

func (r *Runner) each(ctx context.Context, kind string, fn func(context.Context, repository.BankAccount) AccountOutcome) (BatchResult, error) {
	log := logging.OrNop(r.Logger).With(zap.String("batch", kind))
	accts, err := r.Accounts.ListActive(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list active accounts: %w", err)
	}
	res := BatchResult{Accounts: len(accts), Outcomes: make([]AccountOutcome, 0, len(accts))}
	for i, acct := range accts {
		if i > 0 && r.Delay > 0 {
			if err := r.sleep(ctx, r.Delay); err != nil {
				return res, err
			}
		}
		out := r.guard(ctx, log, acct, fn)
		res.Outcomes = append(res.Outcomes, out)
		if out.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
		if out.Sync != nil {
			res.NewTransactions += out.Sync.NewTransactionCount
			res.Matched += out.Sync.Reconciliation.Matched
		}
		if out.Reconcile != nil {
			res.Matched += out.Reconcile.Matched
		}
	}
	log.Info("batch finished",
		zap.Int("accounts", res.Accounts),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("new", res.NewTransactions),
		zap.Int("matched", res.Matched))
	return res, nil
}

// guard isolates one account: a panic becomes a failed outcome.
func (r *Runner) guard(ctx context.Context, log *zap.Logger, acct repository.BankAccount,
	fn func(context.Context, repository.BankAccount) AccountOutcome) (out AccountOutcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("account panicked", zap.String("account_id", acct.ID), zap.Any("panic", p))
			out = AccountOutcome{
				AccountID:   acct.ID,
				Institution: acct.InstitutionCode,
				Error:       fmt.Sprintf("panic: %v", p),
			}
		}
	}()
	out = fn(ctx, acct)
	if !out.Success {
		log.Warn("account failed", zap.String("account_id", acct.ID), zap.String("err", out.Error))
	}
	return out
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
