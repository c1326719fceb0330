package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/config"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/logging"
	"github.com/jask/bankrecon/internal/metrics"
	"github.com/jask/bankrecon/internal/scheduler"
	"github.com/jask/bankrecon/internal/secrets"
	"github.com/jask/bankrecon/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "bankrecon",
	Short: "Reconcile bank deposits against pending POS sales",
	Long: `bankrecon pulls transactions from connected bank accounts, stores them
and matches incoming credits to pending sales paid by transfer, deposit or
wallet redirect. Ambiguous credits are queued for a manual decision.

Configuration comes from ~/.config/bankrecon/config (TOML), a .env file and
BANKRECON_* environment variables.`,
	SilenceUsage: true,
}

// app is the wired process: one engine, one database handle.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	db      *sql.DB
	engine  *service.Engine
	banks   *bank.Registry
	runner  *scheduler.Runner
	promReg *prometheus.Registry
}

// setup loads config, migrates and opens the database and builds the
// engine. withVault is false for commands that never touch credentials.
func setup(withVault bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if withVault {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Server.Mode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.Migrate(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var vault *secrets.Vault
	if withVault {
		if vault, err = secrets.NewVault(cfg.Vault.MasterSecret); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("vault: %w", err)
		}
	}

	catalog, err := bank.DefaultCatalog()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	client := bank.NewClient(bank.ClientOptions{Timeout: cfg.Sync.HTTPTimeout, MaxRetries: cfg.Sync.MaxRetries})
	registry := bank.NewRegistry(catalog.WithBaseURLs(cfg.BaseURLs()), bank.RegistryOptions{Client: client, Location: loc})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := service.NewEngine(db, vault, registry, service.Options{
		LookbackDays: cfg.Sync.LookbackDays,
		Location:     loc,
		Logger:       logger,
		Metrics:      metrics.New(promReg),
	})
	return &app{
		cfg:    cfg,
		log:    logger,
		db:     db,
		engine: engine,
		banks:  registry,
		runner: &scheduler.Runner{
			Engine:   engine,
			Accounts: engine.Accounts(),
			Delay:    cfg.Sync.AccountDelay,
			Logger:   logger,
		},
		promReg: promReg,
	}, nil
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})
}

func (a *app) close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
