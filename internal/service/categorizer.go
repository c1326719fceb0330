package service

import (
	"strings"

	"github.com/jask/bankrecon/internal/database/repository"
)

// Categories derived from transaction descriptions.
const (
	CategoryTransfer = "transfer"
	CategoryDeposit  = "deposit"
	CategoryCard     = "card"
	CategoryWallet   = "wallet"
	CategoryFee      = "fee"
	CategoryInterest = "interest"
	CategoryCash     = "cash"
	CategoryOther    = "other"
)

type categoryRule struct {
	category string
	keywords []string
	// direction restricts the rule; empty matches both.
	direction repository.Direction
}

// first match wins
var categoryRules = []categoryRule{
	{category: CategoryFee, keywords: []string{"COMISION", "COMISIÓN", "IVA COM", "CARGO POR", "FEE"}},
	{category: CategoryInterest, keywords: []string{"INTERES", "INTERÉS", "RENDIMIENTO", "INTEREST"}},
	{category: CategoryWallet, keywords: []string{"MERCADO PAGO", "MERCADOPAGO", "PAYPAL", "CODI", "WALLET", "CLIP"}},
	{category: CategoryTransfer, keywords: []string{"SPEI", "TRANSFERENCIA", "TRASPASO", "TRANSFER", "TEF"}},
	{category: CategoryCash, keywords: []string{"RETIRO", "CAJERO", "ATM"}, direction: repository.Debit},
	{category: CategoryDeposit, keywords: []string{"DEPOSITO", "DEPÓSITO", "DEPOSIT", "EFECTIVO"}},
	{category: CategoryCard, keywords: []string{"TARJETA", "POS ", "TPV", "VISA", "MASTERCARD", "AMEX", "CARD"}},
}

// Categorize derives a category from a description using keyword rules.
func Categorize(description string, dir repository.Direction) string {
	desc := strings.ToUpper(description)
	for _, r := range categoryRules {
		if r.direction != "" && r.direction != dir {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(desc, kw) {
				return r.category
			}
		}
	}
	return CategoryOther
}
