package scheduler

import (
	"context"
	"errors"
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
	"github.com/jask/bankrecon/internal/service"
)

type stubAdapter struct {
	code string
	txs  []bank.Transaction
	err  error
	// panics makes the adapter blow up instead of returning.
	panics bool
}

func (s *stubAdapter) Institution() bank.Institution { return bank.Institution{Code: s.code} }

func (s *stubAdapter) FetchTransactions(context.Context, bank.FetchRequest) ([]bank.Transaction, error) {
	if s.panics {
		panic("adapter exploded")
	}
	return s.txs, s.err
}

func newEngine(t *testing.T, adapters ...bank.Adapter) *service.Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.Migrate(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	catalog, err := bank.DefaultCatalog()
	require.NoError(t, err)
	reg := bank.NewRegistry(catalog, bank.RegistryOptions{})
	for _, a := range adapters {
		reg.Register(a)
	}
	vault, err := secrets.NewVault("scheduler-test")
	require.NoError(t, err)
	return service.NewEngine(db, vault, reg, service.Options{})
}

func connect(t *testing.T, eng *service.Engine, code string, creds map[string]string) string {
	t.Helper()
	res, err := eng.ConnectAccount(context.Background(), service.ConnectRequest{
		InstitutionCode: code,
		AccountNumber:   "11112222",
		Credentials:     creds,
	})
	require.NoError(t, err)
	return res.AccountID
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	failing := &stubAdapter{code: "banorte"}
	healthy := &stubAdapter{code: "santander"}
	eng := newEngine(t, failing, healthy)

	a := connect(t, eng, "banorte", map[string]string{"username": "u", "password": "p"})
	b := connect(t, eng, "santander", map[string]string{"api_key": "k", "api_secret": "s"})

	now := time.Now().UTC()
	failing.err = errors.New("upstream 503")
	healthy.txs = []bank.Transaction{
		{ExternalID: "S1", Date: now.AddDate(0, 0, -1), Description: "SPEI", Amount: decimal.NewFromInt(10), Direction: bank.Credit},
		{ExternalID: "S2", Date: now.AddDate(0, 0, -2), Description: "SPEI", Amount: decimal.NewFromInt(20), Direction: bank.Credit},
	}

	var slept []time.Duration
	r := &Runner{
		Engine:   eng,
		Accounts: eng.Accounts(),
		Delay:    2 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	res, err := r.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Accounts)
	require.Equal(t, 1, res.Failed)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 2, res.NewTransactions)
	require.Equal(t, []time.Duration{2 * time.Second}, slept)

	byID := map[string]AccountOutcome{}
	for _, o := range res.Outcomes {
		byID[o.AccountID] = o
	}
	require.False(t, byID[a].Success)
	require.Contains(t, byID[a].Error, "upstream 503")
	require.True(t, byID[b].Success)
	require.Equal(t, 2, byID[b].Sync.NewTransactionCount)

	acct, err := eng.Accounts().Get(ctx, a)
	require.NoError(t, err)
	require.Equal(t, repository.SyncError, acct.SyncStatus)
}

func TestSyncAllRecoversPanics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bad := &stubAdapter{code: "banorte"}
	good := &stubAdapter{code: "santander"}
	eng := newEngine(t, bad, good)
	connect(t, eng, "santander", map[string]string{"api_key": "k", "api_secret": "s"})
	badID := connect(t, eng, "banorte", map[string]string{"username": "u", "password": "p"})
	bad.panics = true

	r := &Runner{Engine: eng, Accounts: eng.Accounts()}
	res, err := r.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)
	require.Equal(t, 1, res.Failed)
	for _, o := range res.Outcomes {
		if o.AccountID == badID {
			require.Contains(t, o.Error, "panic")
		} else {
			require.True(t, o.Success)
		}
	}
}

func TestSyncAllSkipsInactive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	eng := newEngine(t)
	id := connect(t, eng, "generic", nil)
	require.NoError(t, eng.DeactivateAccount(ctx, id))

	r := &Runner{Engine: eng, Accounts: eng.Accounts()}
	res, err := r.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, res.Accounts)
}

func TestSyncAllStopsOnCancel(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	connect(t, eng, "generic", nil)
	connect(t, eng, "generic", nil)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		Engine:   eng,
		Accounts: eng.Accounts(),
		Delay:    time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	res, err := r.SyncAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, res.Outcomes, 1)
}

func TestReconcileAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	eng := newEngine(t)
	connect(t, eng, "generic", nil)
	connect(t, eng, "generic", nil)

	r := &Runner{Engine: eng, Accounts: eng.Accounts()}
	res, err := r.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Succeeded)
	require.NotNil(t, res.Outcomes[0].Reconcile)
}

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEngine) SyncAccount(ctx context.Context, id string) (service.SyncResult, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return service.SyncResult{AccountID: id, Success: true}, nil
}

func (b *blockingEngine) ReconcileAccount(context.Context, string) (service.ReconcileResult, error) {
	return service.ReconcileResult{}, nil
}

type fixedAccounts []repository.BankAccount

func (f fixedAccounts) ListActive(context.Context) ([]repository.BankAccount, error) { return f, nil }

func TestSchedulerSkipsOverlappingBatches(t *testing.T) {
	t.Parallel()

	be := &blockingEngine{started: make(chan struct{}), release: make(chan struct{})}
	r := &Runner{Engine: be, Accounts: fixedAccounts{{ID: "a"}}}
	s, err := New(r, Cadences{Reconcile: "*/30 * * * *"}, time.UTC, 0, nil)
	require.NoError(t, err)
	require.Len(t, s.Entries(), 1)

	done := make(chan bool)
	go func() { done <- s.Trigger("first", r.SyncAll) }()
	<-be.started

	require.False(t, s.Trigger("second", r.ReconcileAll))
	close(be.release)
	require.True(t, <-done)
	require.True(t, s.Trigger("third", r.ReconcileAll))
	require.NoError(t, s.Stop(context.Background()))
}

func TestSchedulerRejectsBadCadence(t *testing.T) {
	t.Parallel()

	_, err := New(&Runner{}, Cadences{BusinessHours: "every minute"}, time.UTC, 0, nil)
	require.Error(t, err)
}
