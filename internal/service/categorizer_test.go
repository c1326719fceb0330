package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/bankrecon/internal/database/repository"
)

func TestCategorize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc string
		dir  repository.Direction
		want string
	}{
		{"SPEI RECIBIDO BANORTE", repository.Credit, CategoryTransfer},
		{"Deposito en efectivo suc 12", repository.Credit, CategoryDeposit},
		{"COMISION POR MANEJO DE CUENTA", repository.Debit, CategoryFee},
		{"IVA COMISION", repository.Debit, CategoryFee},
		{"Mercado Pago liquidacion", repository.Credit, CategoryWallet},
		{"RETIRO CAJERO 0231", repository.Debit, CategoryCash},
		{"PAGO TARJETA VISA", repository.Debit, CategoryCard},
		{"INTERESES GANADOS", repository.Credit, CategoryInterest},
		{"ABC 123", repository.Credit, CategoryOther},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Categorize(tc.desc, tc.dir), tc.desc)
	}
}
