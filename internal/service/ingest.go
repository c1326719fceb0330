package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
)

// IngestResult counts a statement import. Row errors do not stop the import.
type IngestResult struct {
	Imported int     `json:"imported"`
	Skipped  int     `json:"skipped"`
	Errors   []error `json:"-"`
}

var statementHeader = []string{"date", "description", "amount", "balance", "reference", "external_id"}

// ImportStatement loads a CSV bank statement into an account. It serves
// institutions without an adapter: the rows are picked up by the next
// reconcile pass.
//
// Columns: date, description, amount, balance, reference, external_id. Only
// the first three are required; an optional header row is skipped. Dates
// are YYYY-MM-DD or DD/MM/YYYY (or D/MM/YYYY) in the engine location; amounts are signed.
// Rows without external_id get one derived from their content so a re-import
// of the same file is a no-op.
func (e *Engine) ImportStatement(ctx context.Context, accountID string, r io.Reader) (IngestResult, error) {
	res := IngestResult{}
	acct, err := e.accounts.Get(ctx, accountID)
	if err != nil {
		return res, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return res, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}

	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) < 3 {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: expected at least 3 columns (date, description, amount)", line))
			continue
		}
		t, err := e.statementRow(accountID, rec)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if err := e.transactions.Insert(ctx, t); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
			continue
		}
		res.Imported++
	}
	e.metrics.AddIngested(acct.InstitutionCode, res.Imported)
	e.log.Info("statement imported",
		zap.String("account_id", accountID),
		zap.Int("new", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (e *Engine) statementRow(accountID string, rec []string) (repository.BankTransaction, error) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	date, err := parseStatementDate(field(0), e.loc)
	if err != nil {
		return repository.BankTransaction{}, fmt.Errorf("date: %w", err)
	}
	desc := field(1)
	amount, err := parseMoney(field(2))
	if err != nil {
		return repository.BankTransaction{}, fmt.Errorf("amount: %w", err)
	}
	if amount.IsZero() {
		return repository.BankTransaction{}, errors.New("amount: zero")
	}
	balance := decimal.Zero
	if s := field(3); s != "" {
		if balance, err = parseMoney(s); err != nil {
			return repository.BankTransaction{}, fmt.Errorf("balance: %w", err)
		}
	}
	dir := repository.Credit
	if amount.IsNegative() {
		dir = repository.Debit
	}
	externalID := field(5)
	if externalID == "" {
		externalID = sourceHash(accountID, date.Format(time.DateOnly), amount.String(), desc)
	}
	return repository.BankTransaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ExternalID:  externalID,
		Date:        date,
		Description: desc,
		Amount:      amount,
		Balance:     balance,
		Direction:   dir,
		Category:    Categorize(desc, dir),
		Reference:   field(4),
		CreatedAt:   e.clock(),
	}, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), statementHeader[0])
}

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	return decimal.NewFromString(s)
}

func parseStatementDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, "02/01/2006", "2/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return database.Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
