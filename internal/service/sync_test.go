package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/secrets"
)

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	env.adapter.set([]bank.Transaction{
		bankCredit("E1", "SPEI RECIBIDO", "100.00", day),
		bankCredit("E2", "DEPOSITO", "250.00", day.AddDate(0, 0, 1)),
	}, nil)

	id := env.connect(t, ctx)

	first, err := env.engine.SyncAccount(ctx, id)
	require.NoError(t, err)
	require.True(t, first.Success)
	// the connect already ingested both rows
	require.Equal(t, 0, first.NewTransactionCount)
	require.Equal(t, 2, first.TotalFetched)

	second, err := env.engine.SyncAccount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 0, second.NewTransactionCount)
	require.Len(t, env.transactions(t, ctx, id), 2)
}

func TestSyncCountsNewRows(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)
	id := env.connect(t, ctx)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	env.adapter.set([]bank.Transaction{
		bankCredit("E1", "SPEI RECIBIDO", "100.00", day),
		{ExternalID: "E2", Date: day, Description: "COMISION", Amount: decimal.RequireFromString("-5")},
	}, nil)

	res, err := env.engine.SyncAccount(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, res.NewTransactionCount)
	require.Equal(t, 2, res.TotalFetched)

	byExt := map[string]repository.BankTransaction{}
	for _, tx := range env.transactions(t, ctx, id) {
		byExt[tx.ExternalID] = tx
	}
	require.Equal(t, repository.Credit, byExt["E1"].Direction)
	require.Equal(t, CategoryTransfer, byExt["E1"].Category)
	require.JSONEq(t, `{"id":"E1"}`, string(byExt["E1"].RawPayload))
	require.Equal(t, repository.Debit, byExt["E2"].Direction)
	require.Equal(t, CategoryFee, byExt["E2"].Category)

	acct, err := env.engine.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncSuccess, acct.SyncStatus)
	require.NotNil(t, acct.LastSyncAt)
	require.True(t, acct.LastSyncAt.Equal(testNow))
}

func TestSyncPassesAccountNumberAndWindow(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)
	id := env.connect(t, ctx)

	_, err := env.engine.SyncAccount(ctx, id)
	require.NoError(t, err)

	req := env.adapter.last
	require.Equal(t, "0123456789", req.AccountNumber)
	require.Equal(t, "secret", req.Credentials["client_secret"])
	require.True(t, req.Range.To.Equal(testNow))
	require.True(t, req.Range.From.Equal(testNow.AddDate(0, 0, -30)))
}

func TestSyncMissingAccount(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)

	_, err := env.engine.SyncAccount(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, env.adapter.calls)
}

func TestSyncAdapterFailureMarksAccount(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)
	id := env.connect(t, ctx)

	env.adapter.set(nil, errors.New("socket closed"))
	res, err := env.engine.SyncAccount(ctx, id)
	require.ErrorIs(t, err, ErrConnection)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "socket closed")

	acct, err := env.engine.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncError, acct.SyncStatus)
	require.NotNil(t, acct.LastError)
	require.Contains(t, *acct.LastError, "socket closed")

	// the account recovers on the next successful attempt
	env.adapter.set(nil, nil)
	res, err = env.engine.SyncAccount(ctx, id)
	require.NoError(t, err)
	require.True(t, res.Success)
	acct, err = env.engine.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncSuccess, acct.SyncStatus)
	require.Nil(t, acct.LastError)
}

func TestSyncDecryptionFailure(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)
	id := env.connect(t, ctx)
	calls := env.adapter.calls

	other, err := secrets.NewVault("another-secret")
	require.NoError(t, err)
	eng := NewEngine(env.db, other, env.registry, Options{Clock: func() time.Time { return testNow }})

	res, err := eng.SyncAccount(ctx, id)
	require.ErrorIs(t, err, ErrDecryption)
	require.False(t, res.Success)
	require.Equal(t, calls, env.adapter.calls)

	acct, err := eng.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncError, acct.SyncStatus)
}

func TestSyncFallbackInstitutionFetchesNothing(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)

	res, err := env.engine.ConnectAccount(ctx, ConnectRequest{
		InstitutionCode: "generic",
		AccountNumber:   "99887766",
	})
	require.NoError(t, err)
	require.True(t, res.InitialSync.Success)
	require.Equal(t, 0, res.InitialSync.TotalFetched)
}

func TestSyncRecoversAdapterPanic(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	env := newTestEnv(t)
	id := env.connect(t, ctx)

	acct, err := env.engine.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncSuccess, acct.SyncStatus)

	env.registry.Register(explodingAdapter{code: "bbva"})
	var res SyncResult
	require.NotPanics(t, func() { res, err = env.engine.SyncAccount(ctx, id) })
	require.ErrorIs(t, err, ErrConnection)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "adapter exploded")

	acct, err = env.engine.Accounts().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.SyncError, acct.SyncStatus)
	require.NotNil(t, acct.LastError)
	require.Contains(t, *acct.LastError, "adapter panic")
}
