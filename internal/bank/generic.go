package bank

import "context"

// Generic is the fallback for institutions without an adapter. It never
// fails and never returns transactions.
type Generic struct {
	inst Institution
}

func NewGeneric(inst Institution) *Generic {
	if inst.Code == "" {
		inst = Institution{Code: GenericCode, Name: "Generic bank", Kind: "fallback", Auth: "none"}
	}
	return &Generic{inst: inst}
}

func (g *Generic) Institution() Institution { return g.inst }

func (g *Generic) FetchTransactions(context.Context, FetchRequest) ([]Transaction, error) {
	return []Transaction{}, nil
}
