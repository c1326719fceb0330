package repository

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SyncStatus is the health of an account's most recent ingestion attempt.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// Direction of money movement relative to the account.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// ReconciliationType records who produced a match.
type ReconciliationType string

const (
	ReconcileAuto   ReconciliationType = "auto"
	ReconcileManual ReconciliationType = "manual"
)

// PaymentStatus of a sale as owned by the POS.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentMethod of a sale.
type PaymentMethod string

const (
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodDeposit        PaymentMethod = "deposit"
	MethodWalletRedirect PaymentMethod = "wallet_redirect"
	MethodCash           PaymentMethod = "cash"
	MethodCard           PaymentMethod = "card"
)

// ReconcilableMethods are the payment methods whose settlement shows up on
// a bank statement.
var ReconcilableMethods = []PaymentMethod{MethodBankTransfer, MethodDeposit, MethodWalletRedirect}

// SystemActor is recorded as creator of automatic reconciliations.
const SystemActor = "system"

// BankAccount represents a bank_accounts row.
type BankAccount struct {
	ID                    string
	InstitutionCode       string
	MaskedAccountNumber   string
	AccountKind           string
	CredentialsCiphertext []byte
	CredentialsNonce      []byte
	CredentialsSalt       []byte
	Active                bool
	LastSyncAt            *time.Time
	SyncStatus            SyncStatus
	LastError             *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// BankTransaction represents a bank_transactions row.
type BankTransaction struct {
	ID          string
	AccountID   string
	ExternalID  string
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	Direction   Direction
	Category    string
	Reference   string
	RawPayload  json.RawMessage
	Reconciled  bool
	CreatedAt   time.Time
}

// Sale is the subset of a POS sale the engine reads and writes.
type Sale struct {
	ID                string
	ExternalReference string
	Total             decimal.Decimal
	PaymentStatus     PaymentStatus
	PaymentMethod     PaymentMethod
	PaymentReference  string
	ClientName        string
	PaymentDate       *time.Time
	CreatedAt         time.Time
}

// Reconciliation represents an immutable reconciliations row.
type Reconciliation struct {
	ID            string
	AccountID     string
	TransactionID string
	SaleID        string
	Type          ReconciliationType
	Confidence    int
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
}

// MatchReview is an ambiguous transaction waiting for a manual decision.
type MatchReview struct {
	ID               string
	AccountID        string
	TransactionID    string
	CandidateSaleIDs []string
	BestSimilarity   float64
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TransactionStats summarises reconciliation progress for an account.
type TransactionStats struct {
	Total      int
	Reconciled int
	Pending    int
}
