// Package service implements the reconciliation engine: account sync,
// automatic and manual reconciliation, account onboarding and status.
package service

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/bank"
	"github.com/jask/bankrecon/internal/database"
	"github.com/jask/bankrecon/internal/database/repository"
	"github.com/jask/bankrecon/internal/logging"
	"github.com/jask/bankrecon/internal/matcher"
	"github.com/jask/bankrecon/internal/metrics"
	"github.com/jask/bankrecon/internal/secrets"
)

const (
	DefaultLookbackDays = 30
	DefaultMatchLimit   = 100

	pendingListLimit = 50
	recentListLimit  = 20
)

// Options tune an Engine. Zero values fall back to defaults.
type Options struct {
	LookbackDays int
	// MatchLimit bounds both unreconciled credits and pending sales per pass.
	MatchLimit int
	Location   *time.Location
	Clock      func() time.Time
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Engine holds every dependency of the reconciliation operations. It has
// no package-level state; build one per process or per test.
type Engine struct {
	db              *sql.DB
	accounts        *repository.AccountRepo
	transactions    *repository.TransactionRepo
	reconciliations *repository.ReconciliationRepo
	sales           *repository.SaleRepo
	vault           *secrets.Vault
	registry        *bank.Registry
	matcher         *matcher.Matcher

	lookbackDays int
	matchLimit   int
	loc          *time.Location
	now          func() time.Time
	log          *zap.Logger
	metrics      *metrics.Metrics
}

func NewEngine(db *sql.DB, vault *secrets.Vault, registry *bank.Registry, opts Options) *Engine {
	e := &Engine{
		db:              db,
		accounts:        repository.NewAccountRepo(db),
		transactions:    repository.NewTransactionRepo(db),
		reconciliations: repository.NewReconciliationRepo(db),
		sales:           repository.NewSaleRepo(db),
		vault:           vault,
		registry:        registry,
		lookbackDays:    opts.LookbackDays,
		matchLimit:      opts.MatchLimit,
		loc:             opts.Location,
		now:             opts.Clock,
		log:             logging.OrNop(opts.Logger),
		metrics:         opts.Metrics,
	}
	if e.lookbackDays <= 0 {
		e.lookbackDays = DefaultLookbackDays
	}
	if e.matchLimit <= 0 {
		e.matchLimit = DefaultMatchLimit
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.matcher = matcher.New(e.loc)
	return e
}

// Accounts exposes the account store to batch runners.
func (e *Engine) Accounts() *repository.AccountRepo { return e.accounts }

func (e *Engine) clock() time.Time { return database.Normalize(e.now()) }
