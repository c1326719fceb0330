package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/secrets"
)

// credAccountNumber is the key under which the full account number is
// sealed together with the institution credentials.
const credAccountNumber = "account_number"

// SyncResult is the outcome of one account sync. A failed sync still
// returns a populated result alongside the error.
type SyncResult struct {
	AccountID           string          `json:"account_id"`
	Success             bool            `json:"success"`
	NewTransactionCount int             `json:"new_transaction_count"`
	TotalFetched        int             `json:"total_fetched"`
	Reconciliation      ReconcileResult `json:"reconciliation"`
	Message             string          `json:"message,omitempty"`
}

// SyncAccount fetches the last LookbackDays of transactions for an account,
// stores the new ones and reconciles the account.
//
// A missing account yields ErrNotFound and writes nothing. Credential and
// adapter failures leave the account in error status and return an error
// wrapping ErrDecryption or ErrConnection together with a failed result.
func (e *Engine) SyncAccount(ctx context.Context, accountID string) (SyncResult, error) {
	res := SyncResult{AccountID: accountID}
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return res, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	log := e.log.With(zap.String("account_id", acct.ID), zap.String("institution", acct.InstitutionCode))
	started := time.Now()

	fetched, err := e.fetch(ctx, *acct)
	if err != nil {
		return e.failSync(ctx, log, *acct, res, started, err)
	}
	res.TotalFetched = len(fetched)

	inserted, err := e.ingest(ctx, acct.ID, fetched)
	if err != nil {
		return e.failSync(ctx, log, *acct, res, started, fmt.Errorf("store transactions: %w", err))
	}
	res.NewTransactionCount = inserted
	e.metrics.AddIngested(acct.InstitutionCode, inserted)

	if err := e.accounts.MarkSyncSuccess(ctx, acct.ID, e.clock()); err != nil {
		return e.failSync(ctx, log, *acct, res, started, fmt.Errorf("mark sync success: %w", err))
	}

	rec, err := e.ReconcileAccount(ctx, acct.ID)
	res.Reconciliation = rec
	if err != nil {
		return e.failSync(ctx, log, *acct, res, started, fmt.Errorf("reconcile: %w", err))
	}

	res.Success = true
	e.metrics.ObserveSync(acct.InstitutionCode, true, time.Since(started))
	log.Info("account synced",
		zap.Int("new", res.NewTransactionCount),
		zap.Int("fetched", res.TotalFetched),
		zap.Int("matched", rec.Matched),
		zap.Int("ambiguous", rec.Ambiguous))
	return res, nil
}

func (e *Engine) failSync(ctx context.Context, log *zap.Logger, acct repository.BankAccount, res SyncResult, started time.Time, cause error) (SyncResult, error) {
	res.Success = false
	res.Message = cause.Error()
	if err := e.accounts.MarkSyncError(ctx, acct.ID, res.Message, e.clock()); err != nil {
		log.Error("mark sync error", zap.Error(err))
	}
	e.metrics.ObserveSync(acct.InstitutionCode, false, time.Since(started))
	log.Warn("account sync failed", zap.Error(cause))
	return res, cause
}

// fetch unseals the credentials and calls the institution adapter. A
// panicking adapter is reported as a connection failure.
func (e *Engine) fetch(ctx context.Context, acct repository.BankAccount) (txs []bank.Transaction, err error) {
	creds, err := e.unsealCredentials(acct)
	if err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			txs, err = nil, fmt.Errorf("%w: %s: adapter panic: %v", ErrConnection, acct.InstitutionCode, p)
		}
	}()
	adapter := e.registry.Lookup(acct.InstitutionCode)
	txs, err = adapter.FetchTransactions(ctx, bank.FetchRequest{
		AccountNumber: creds[credAccountNumber],
		AccountKind:   acct.AccountKind,
		Credentials:   creds,
		Range:         bank.Lookback(e.clock(), e.lookbackDays),
	})
	if err != nil {
		if errors.Is(err, ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, acct.InstitutionCode, err)
	}
	return txs, nil
}

func (e *Engine) unsealCredentials(acct repository.BankAccount) (bank.Credentials, error) {
	if e.vault == nil {
		return nil, fmt.Errorf("%w: vault not configured", ErrDecryption)
	}
	var creds bank.Credentials
	err := e.vault.UnsealJSON(secrets.Sealed{
		Ciphertext: acct.CredentialsCiphertext,
		Nonce:      acct.CredentialsNonce,
		Salt:       acct.CredentialsSalt,
	}, &creds)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		creds = bank.Credentials{}
	}
	return creds, nil
}

// ingest stores the transactions not yet known and returns how many were new.
func (e *Engine) ingest(ctx context.Context, accountID string, txs []bank.Transaction) (int, error) {
	inserted := 0
	for _, bt := range txs {
		t := e.toRecord(accountID, bt)
		exists, err := e.transactions.Exists(ctx, accountID, t.ExternalID, t.Date)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		if err := e.transactions.Insert(ctx, t); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (e *Engine) toRecord(accountID string, bt bank.Transaction) repository.BankTransaction {
	date := database.Normalize(bt.Date)
	dir := repository.Direction(bt.Direction)
	if dir == "" {
		dir = repository.Credit
		if bt.Amount.IsNegative() {
			dir = repository.Debit
		}
	}
	externalID := strings.TrimSpace(bt.ExternalID)
	if externalID == "" {
		externalID = sourceHash(accountID, date.Format(time.DateOnly), bt.Amount.String(), bt.Description)
	}
	return repository.BankTransaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ExternalID:  externalID,
		Date:        date,
		Description: bt.Description,
		Amount:      bt.Amount,
		Balance:     bt.Balance,
		Direction:   dir,
		Category:    Categorize(bt.Description, dir),
		Reference:   bt.Reference,
		RawPayload:  bt.Raw,
		CreatedAt:   e.clock(),
	}
}

// sourceHash identifies records that carry no institution id.
func sourceHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("h:%x", sum[:12])
}
