// Package bank fetches transaction ledgers from banking institutions.
//
// Each institution is an Adapter that exchanges the account's credentials
// for a short-lived token and returns the ledger in a normalized shape.
// Adapters are looked up by institution code through a Registry; codes
// without a real adapter resolve to a no-op fallback.
package bank

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrConnection covers network failures, timeouts and unexpected
	// responses from an institution.
	ErrConnection = errors.New("bank connection failed")
	// ErrAuth is returned (together with ErrConnection) when an institution
	// rejects the stored credentials.
	ErrAuth = errors.New("bank rejected credentials")
	// ErrMissingCredential is returned when a required credential field is empty.
	ErrMissingCredential = errors.New("missing credential")
)

// Direction of a normalized transaction.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Credentials are the decrypted institution credentials of an account.
type Credentials map[string]string

// Require returns the named fields or ErrMissingCredential.
func (c Credentials) Require(keys ...string) error {
	for _, k := range keys {
		if c[k] == "" {
			return &MissingCredentialError{Field: k}
		}
	}
	return nil
}

// MissingCredentialError names the absent credential field.
type MissingCredentialError struct {
	Field string
}

func (e *MissingCredentialError) Error() string { return "missing credential " + e.Field }

func (e *MissingCredentialError) Unwrap() error { return ErrMissingCredential }

// DateRange is an inclusive window of transaction dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Lookback returns the window of the given number of days ending at now.
func Lookback(now time.Time, days int) DateRange {
	return DateRange{From: now.AddDate(0, 0, -days), To: now}
}

// FetchRequest carries everything an adapter needs for one fetch.
type FetchRequest struct {
	AccountNumber string
	AccountKind   string
	Credentials   Credentials
	Range         DateRange
}

// Transaction is the institution-independent shape of a ledger entry.
// Amount is signed: credits positive, debits negative.
type Transaction struct {
	ExternalID  string
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Balance     decimal.Decimal
	Direction   Direction
	Reference   string
	Raw         json.RawMessage
}

// Adapter is one institution's implementation of the ledger fetch.
type Adapter interface {
	Institution() Institution
	FetchTransactions(ctx context.Context, req FetchRequest) ([]Transaction, error)
}
