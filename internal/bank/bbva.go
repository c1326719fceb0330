package bank

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BBVA uses OAuth2 client credentials and reports typed CREDIT/DEBIT rows.
type BBVA struct{ base }

func NewBBVA(inst Institution, c *Client, loc *time.Location) *BBVA {
	return &BBVA{base{inst: inst, client: c, loc: loc}}
}

type bbvaToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type bbvaMovement struct {
	ID            string `json:"id"`
	OperationDate string `json:"operationDate"`
	Concept       string `json:"concept"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
	Type          string `json:"type"`
	Reference     string `json:"reference"`
}

type bbvaMovements struct {
	Data []bbvaMovement `json:"data"`
}

func (a *BBVA) FetchTransactions(ctx context.Context, req FetchRequest) ([]Transaction, error) {
	if err := req.Credentials.Require("client_id", "client_secret"); err != nil {
		return nil, err
	}
	tokenURL, err := a.endpoint("/oauth/token", nil)
	if err != nil {
		return nil, err
	}
	var tok bbvaToken
	err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return formRequest(ctx, tokenURL, url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {req.Credentials["client_id"]},
			"client_secret": {req.Credentials["client_secret"]},
		})
	}, &tok)
	if err != nil {
		return nil, fmt.Errorf("bbva token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: bbva: empty access token", ErrConnection)
	}

	listURL, err := a.endpoint("/accounts/"+url.PathEscape(req.AccountNumber)+"/transactions", url.Values{
		"from": {dateParam(req.Range.From, a.loc)},
		"to":   {dateParam(req.Range.To, a.loc)},
	})
	if err != nil {
		return nil, err
	}
	var page bbvaMovements
	err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := jsonRequest(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, err
		}
		bearer(r, tok.AccessToken)
		return r, nil
	}, &page)
	if err != nil {
		return nil, fmt.Errorf("bbva transactions: %w", err)
	}

	out := make([]Transaction, 0, len(page.Data))
	for _, m := range page.Data {
		t, err := a.normalize(m)
		if err != nil {
			return nil, normalizeErr(a.inst, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (a *BBVA) normalize(m bbvaMovement) (Transaction, error) {
	date, err := parseDate(m.OperationDate, a.loc, "2006-01-02", time.RFC3339)
	if err != nil {
		return Transaction{}, err
	}
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return Transaction{}, err
	}
	balance, err := parseAmount(m.Balance)
	if err != nil {
		return Transaction{}, err
	}
	var dir Direction
	switch strings.ToUpper(m.Type) {
	case "CREDIT", "ABONO":
		dir = Credit
	case "DEBIT", "CARGO":
		dir = Debit
	}
	amount, dir = signed(amount, dir)
	return Transaction{
		ExternalID:  m.ID,
		Date:        date,
		Description: strings.TrimSpace(m.Concept),
		Amount:      amount,
		Balance:     balance,
		Direction:   dir,
		Reference:   strings.TrimSpace(m.Reference),
		Raw:         rawJSON(m),
	}, nil
}
