package testdata

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/secrets"
	"github.com/jask/bankrecon/internal/service"
)

var demoNow = time.Date(2025, 3, 12, 18, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()
	opts := Options{Sales: 8, Settled: 5, Noise: 3, Seed: 42, Now: demoNow}
	a := Generate(opts)
	b := Generate(opts)
	require.Equal(t, a, b)
	require.Len(t, a.Sales, 8)
	require.Len(t, a.Statement, 1+5+3)

	for _, s := range a.Sales {
		require.Equal(t, repository.PaymentPending, s.PaymentStatus)
		require.True(t, s.Total.IsPositive())
		require.False(t, s.CreatedAt.After(demoNow))
	}

	other := Generate(Options{Sales: 8, Settled: 5, Noise: 3, Seed: 43, Now: demoNow})
	require.NotEqual(t, a.Sales, other.Sales)
}

func TestGenerateClampsSettled(t *testing.T) {
	t.Parallel()
	d := Generate(Options{Sales: 2, Settled: 10, Seed: 1, Now: demoNow})
	require.Len(t, d.Statement, 3)
}

func TestSeedAndImportReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "demo.db")
	require.NoError(t, database.Migrate(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	catalog, err := bank.DefaultCatalog()
	require.NoError(t, err)
	vault, err := secrets.NewVault("demo")
	require.NoError(t, err)
	eng := service.NewEngine(db, vault, bank.NewRegistry(catalog, bank.RegistryOptions{}), service.Options{
		Clock: func() time.Time { return demoNow },
	})
	acct, err := eng.ConnectAccount(ctx, service.ConnectRequest{InstitutionCode: "generic", AccountNumber: "99887766"})
	require.NoError(t, err)

	d := Generate(Options{Sales: 10, Settled: 6, Noise: 4, Seed: 7, Now: demoNow})
	require.NoError(t, d.Seed(ctx, repository.NewSaleRepo(db)))
	require.Error(t, d.Seed(ctx, repository.NewSaleRepo(db)), "seeding twice collides on sale ids")

	var buf bytes.Buffer
	require.NoError(t, d.WriteStatement(&buf))
	imported, err := eng.ImportStatement(ctx, acct.AccountID, &buf)
	require.NoError(t, err)
	require.Empty(t, imported.Errors)
	require.Equal(t, 10, imported.Imported)

	res, err := eng.ReconcileAccount(ctx, acct.AccountID)
	require.NoError(t, err)
	require.Equal(t, 6, res.Matched)
	require.Zero(t, res.Conflicts)
}
