package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/secrets"
)

var testNow = time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)

// fakeAdapter serves a fixed ledger for one institution code.
type fakeAdapter struct {
	code string

	mu    sync.Mutex
	txs   []bank.Transaction
	err   error
	calls int
	last  bank.FetchRequest
}

func (f *fakeAdapter) Institution() bank.Institution { return bank.Institution{Code: f.code} }

func (f *fakeAdapter) FetchTransactions(_ context.Context, req bank.FetchRequest) ([]bank.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	out := make([]bank.Transaction, len(f.txs))
	copy(out, f.txs)
	return out, nil
}

func (f *fakeAdapter) set(txs []bank.Transaction, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs, f.err = txs, err
}

// explodingAdapter panics on every fetch.
type explodingAdapter struct{ code string }

func (x explodingAdapter) Institution() bank.Institution { return bank.Institution{Code: x.code} }

func (x explodingAdapter) FetchTransactions(context.Context, bank.FetchRequest) ([]bank.Transaction, error) {
	panic("adapter exploded")
}

type testEnv struct {
	db       *sql.DB
	engine   *Engine
	registry *bank.Registry
	vault    *secrets.Vault
	adapter  *fakeAdapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.Migrate(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	catalog, err := bank.DefaultCatalog()
	require.NoError(t, err)
	reg := bank.NewRegistry(catalog, bank.RegistryOptions{})
	fa := &fakeAdapter{code: "bbva"}
	reg.Register(fa)

	vault, err := secrets.NewVault("test-master-secret")
	require.NoError(t, err)

	eng := NewEngine(db, vault, reg, Options{Clock: func() time.Time { return testNow }})
	return &testEnv{db: db, engine: eng, registry: reg, vault: vault, adapter: fa}
}

func (env *testEnv) connect(t *testing.T, ctx context.Context) string {
	t.Helper()
	res, err := env.engine.ConnectAccount(ctx, ConnectRequest{
		InstitutionCode: "bbva",
		AccountNumber:   "0123456789",
		Credentials:     map[string]string{"client_id": "id", "client_secret": "secret"},
	})
	require.NoError(t, err)
	return res.AccountID
}

func (env *testEnv) addSale(t *testing.T, ctx context.Context, id, client, total string, at time.Time) {
	t.Helper()
	require.NoError(t, repository.NewSaleRepo(env.db).Insert(ctx, repository.Sale{
		ID:            id,
		Total:         decimal.RequireFromString(total),
		PaymentStatus: repository.PaymentPending,
		PaymentMethod: repository.MethodBankTransfer,
		ClientName:    client,
		CreatedAt:     at,
	}))
}

func (env *testEnv) sale(t *testing.T, ctx context.Context, id string) repository.Sale {
	t.Helper()
	s, err := repository.NewSaleRepo(env.db).Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return *s
}

func (env *testEnv) transactions(t *testing.T, ctx context.Context, accountID string) []repository.BankTransaction {
	t.Helper()
	txs, err := repository.NewTransactionRepo(env.db).ListByAccount(ctx, accountID)
	require.NoError(t, err)
	return txs
}

func bankCredit(id, desc, amount string, at time.Time) bank.Transaction {
	return bank.Transaction{
		ExternalID:  id,
		Date:        at,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Direction:   bank.Credit,
		Raw:         []byte(`{"id":"` + id + `"}`),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
