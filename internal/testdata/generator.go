// Package testdata generates demo POS sales together with a bank statement
// that settles part of them, for trying the reconciler without a bank.
package testdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/bankrecon/internal/database/repository"
)

// SaleWriter stores generated sales.
type SaleWriter interface {
	Insert(ctx context.Context, s repository.Sale) error
}

// Options controls the generated data set.
type Options struct {
	Sales int
	// Settled is how many of the sales get a matching statement row.
	Settled int
	// Noise adds statement rows that match nothing.
	Noise int
	Seed  int64
	Now   time.Time
}

// Demo is what Generate produced.
type Demo struct {
	Sales     []repository.Sale
	Statement [][]string
}

var (
	clients = []string{"Maria Lopez", "Juan Perez", "Abarrotes Don Luis", "Farmacia Central", "Ana Torres", "Papeleria La Estrella"}
	methods = []repository.PaymentMethod{repository.MethodBankTransfer, repository.MethodDeposit, repository.MethodWalletRedirect}
	noise   = []string{"COMISION MANEJO CUENTA", "PAGO TARJETA OXXO", "RETIRO CAJERO", "INTERESES GANADOS"}
)

// Generate builds the same demo for the same options.
func Generate(opts Options) Demo {
	if opts.Sales <= 0 {
		opts.Sales = 12
	}
	if opts.Settled > opts.Sales {
		opts.Settled = opts.Sales
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	now := opts.Now.UTC().Truncate(time.Second)

	var d Demo
	d.Statement = append(d.Statement, []string{"date", "description", "amount", "balance", "reference", "external_id"})
	balance := decimal.NewFromInt(25000)
	for i := 0; i < opts.Sales; i++ {
		created := now.AddDate(0, 0, -rng.Intn(10)).Add(-time.Duration(rng.Intn(8)) * time.Hour)
		// Cents keep totals distinct enough that most settle automatically.
		total := decimal.New(int64(rng.Intn(450000)+5000), -2)
		s := repository.Sale{
			ID:                fmt.Sprintf("DEMO-%04d", i+1),
			ExternalReference: fmt.Sprintf("POS%06d", rng.Intn(1000000)),
			Total:             total,
			PaymentStatus:     repository.PaymentPending,
			PaymentMethod:     methods[rng.Intn(len(methods))],
			ClientName:        clients[rng.Intn(len(clients))],
			CreatedAt:         created,
		}
		d.Sales = append(d.Sales, s)
		if i >= opts.Settled {
			continue
		}
		settled := created.Add(time.Duration(rng.Intn(36)) * time.Hour)
		if settled.After(now) {
			settled = now
		}
		ref := ""
		if rng.Intn(2) == 0 {
			ref = s.ExternalReference
		}
		balance = balance.Add(total)
		d.Statement = append(d.Statement, []string{
			settled.Format(time.DateOnly),
			"SPEI RECIBIDO " + s.ClientName,
			total.StringFixed(2),
			balance.StringFixed(2),
			ref,
			fmt.Sprintf("DEMO-TX-%04d", i+1),
		})
	}
	for i := 0; i < opts.Noise; i++ {
		amount := decimal.New(-int64(rng.Intn(90000)+100), -2)
		balance = balance.Add(amount)
		d.Statement = append(d.Statement, []string{
			now.AddDate(0, 0, -rng.Intn(10)).Format(time.DateOnly),
			noise[rng.Intn(len(noise))],
			amount.StringFixed(2),
			balance.StringFixed(2),
			"",
			fmt.Sprintf("DEMO-NOISE-%04d", i+1),
		})
	}
	return d
}

// Seed stores the demo sales. Sales that already exist are reported as
// errors by the writer and stop the seed.
func (d Demo) Seed(ctx context.Context, sales SaleWriter) error {
	for _, s := range d.Sales {
		if err := sales.Insert(ctx, s); err != nil {
			return fmt.Errorf("insert sale %s: %w", s.ID, err)
		}
	}
	return nil
}

// WriteStatement writes the statement as CSV in the import format.
func (d Demo) WriteStatement(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(d.Statement); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}
	return nil
}
