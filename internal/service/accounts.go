package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database/repository"
)

// ConnectRequest onboards a bank account.
type ConnectRequest struct {
	InstitutionCode string            `json:"institution_code"`
	AccountNumber   string            `json:"account_number"`
	AccountKind     string            `json:"account_kind"`
	Credentials     map[string]string `json:"credentials"`
}

type ConnectResult struct {
	AccountID           string     `json:"account_id"`
	InstitutionName     string     `json:"institution_name"`
	MaskedAccountNumber string     `json:"masked_account_number"`
	InitialSync         SyncResult `json:"initial_sync"`
}

// ConnectAccount validates the institution against the catalog, seals the
// credentials, stores the account and runs a first sync. Catalog entries
// without an adapter connect fine and sync nothing. A failed first sync is reported in
// the result; it does not fail the connect.
func (e *Engine) ConnectAccount(ctx context.Context, req ConnectRequest) (ConnectResult, error) {
	code := bank.NormalizeCode(req.InstitutionCode)
	inst, ok := e.registry.Institution(code)
	if !ok {
		return ConnectResult{}, fmt.Errorf("%w: unsupported institution %q", ErrValidation, req.InstitutionCode)
	}
	number := digitsOnly(req.AccountNumber)
	if len(number) < 4 {
		return ConnectResult{}, fmt.Errorf("%w: account number needs at least 4 digits", ErrValidation)
	}
	kind := strings.TrimSpace(req.AccountKind)
	if kind == "" {
		kind = "checking"
	}
	creds := bank.Credentials{}
	for k, v := range req.Credentials {
		creds[k] = v
	}
	if err := creds.Require(inst.Credentials...); err != nil {
		return ConnectResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if e.vault == nil {
		return ConnectResult{}, fmt.Errorf("%w: vault not configured", ErrValidation)
	}
	creds[credAccountNumber] = number
	sealed, err := e.vault.SealJSON(creds)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("seal credentials: %w", err)
	}

	now := e.clock()
	acct := repository.BankAccount{
		ID:                    uuid.NewString(),
		InstitutionCode:       code,
		MaskedAccountNumber:   MaskAccountNumber(number),
		AccountKind:           kind,
		CredentialsCiphertext: sealed.Ciphertext,
		CredentialsNonce:      sealed.Nonce,
		CredentialsSalt:       sealed.Salt,
		Active:                true,
		SyncStatus:            repository.SyncIdle,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := e.accounts.Insert(ctx, acct); err != nil {
		return ConnectResult{}, fmt.Errorf("store account: %w", err)
	}
	e.log.Info("account connected", zap.String("account_id", acct.ID), zap.String("institution", code))

	name := inst.Name
	if name == "" {
		name = code
	}
	res := ConnectResult{
		AccountID:           acct.ID,
		InstitutionName:     name,
		MaskedAccountNumber: acct.MaskedAccountNumber,
	}
	// the sync error is already recorded on the account and in the result
	res.InitialSync, _ = e.SyncAccount(ctx, acct.ID)
	return res, nil
}

// DeactivateAccount stops scheduling an account. Its data is kept.
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) error {
	ok, err := e.accounts.SetActive(ctx, accountID, false, e.clock())
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	e.log.Info("account deactivated", zap.String("account_id", accountID))
	return nil
}

// MaskAccountNumber keeps only the last four digits visible.
func MaskAccountNumber(number string) string {
	d := digitsOnly(number)
	if len(d) <= 4 {
		return "****" + d
	}
	return "****" + d[len(d)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AccountSummary is the credential-free view of an account.
type AccountSummary struct {
	ID                  string     `json:"id"`
	InstitutionCode     string     `json:"institution_code"`
	MaskedAccountNumber string     `json:"masked_account_number"`
	AccountKind         string     `json:"account_kind"`
	Active              bool       `json:"active"`
	SyncStatus          string     `json:"sync_status"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

type Stats struct {
	Total      int     `json:"total"`
	Reconciled int     `json:"reconciled"`
	Pending    int     `json:"pending"`
	Rate       float64 `json:"rate"`
}

type TransactionView struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      string    `json:"amount"`
	Direction   string    `json:"direction"`
	Category    string    `json:"category"`
	Reference   string    `json:"reference,omitempty"`
}

type ReconciliationView struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	SaleID        string    `json:"sale_id"`
	Type          string    `json:"type"`
	Confidence    int       `json:"confidence"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReviewView struct {
	TransactionID    string    `json:"transaction_id"`
	CandidateSaleIDs []string  `json:"candidate_sale_ids"`
	BestSimilarity   float64   `json:"best_similarity"`
	CreatedAt        time.Time `json:"created_at"`
}

// StatusReport is the reconciliation overview of one account.
type StatusReport struct {
	Account               AccountSummary       `json:"account"`
	Stats                 Stats                `json:"stats"`
	PendingTransactions   []TransactionView    `json:"pending_transactions"`
	RecentReconciliations []ReconciliationView `json:"recent_reconciliations"`
	PendingReviews        []ReviewView         `json:"pending_reviews"`
}

// ReconciliationStatus reports progress, the newest unreconciled
// transactions, the latest reconciliations and the open reviews.
func (e *Engine) ReconciliationStatus(ctx context.Context, accountID string) (StatusReport, error) {
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return StatusReport{}, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	st, err := e.transactions.Stats(ctx, accountID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("stats: %w", err)
	}
	pending, err := e.transactions.ListUnreconciled(ctx, accountID, pendingListLimit)
	if err != nil {
		return StatusReport{}, fmt.Errorf("pending transactions: %w", err)
	}
	recent, err := e.reconciliations.ListRecent(ctx, accountID, recentListLimit)
	if err != nil {
		return StatusReport{}, fmt.Errorf("recent reconciliations: %w", err)
	}
	reviews, err := e.pendingReviews(ctx, accountID)
	if err != nil {
		return StatusReport{}, err
	}

	rep := StatusReport{
		Account: Summarize(*acct),
		Stats: Stats{
			Total:      st.Total,
			Reconciled: st.Reconciled,
			Pending:    st.Pending,
			Rate:       reconciledRate(st.Reconciled, st.Total),
		},
		PendingTransactions:   make([]TransactionView, 0, len(pending)),
		RecentReconciliations: make([]ReconciliationView, 0, len(recent)),
		PendingReviews:        reviews,
	}
	for _, t := range pending {
		rep.PendingTransactions = append(rep.PendingTransactions, TransactionView{
			ID:          t.ID,
			ExternalID:  t.ExternalID,
			Date:        t.Date,
			Description: t.Description,
			Amount:      t.Amount.StringFixed(2),
			Direction:   string(t.Direction),
			Category:    t.Category,
			Reference:   t.Reference,
		})
	}
	for _, r := range recent {
		rep.RecentReconciliations = append(rep.RecentReconciliations, ReconciliationView{
			ID:            r.ID,
			TransactionID: r.TransactionID,
			SaleID:        r.SaleID,
			Type:          string(r.Type),
			Confidence:    r.Confidence,
			Notes:         r.Notes,
			CreatedBy:     r.CreatedBy,
			CreatedAt:     r.CreatedAt,
		})
	}
	return rep, nil
}

// PendingReviews lists the ambiguous transactions of an account still
// waiting for a manual decision.
func (e *Engine) PendingReviews(ctx context.Context, accountID string) ([]ReviewView, error) {
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return e.pendingReviews(ctx, accountID)
}

func (e *Engine) pendingReviews(ctx context.Context, accountID string) ([]ReviewView, error) {
	reviews, err := e.reconciliations.ListPendingReviews(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("pending reviews: %w", err)
	}
	out := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, ReviewView{
			TransactionID:    r.TransactionID,
			CandidateSaleIDs: r.CandidateSaleIDs,
			BestSimilarity:   r.BestSimilarity,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out, nil
}

// ListAccounts returns every account, active or not.
func (e *Engine) ListAccounts(ctx context.Context) ([]AccountSummary, error) {
	accts, err := e.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountSummary, 0, len(accts))
	for _, a := range accts {
		out = append(out, Summarize(a))
	}
	return out, nil
}

func Summarize(a repository.BankAccount) AccountSummary {
	s := AccountSummary{
		ID:                  a.ID,
		InstitutionCode:     a.InstitutionCode,
		MaskedAccountNumber: a.MaskedAccountNumber,
		AccountKind:         a.AccountKind,
		Active:              a.Active,
		SyncStatus:          string(a.SyncStatus),
		LastSyncAt:          a.LastSyncAt,
	}
	if a.LastError != nil {
		s.LastError = *a.LastError
	}
	return s
}

func reconciledRate(reconciled, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(reconciled)/float64(total)*10000) / 100
}
