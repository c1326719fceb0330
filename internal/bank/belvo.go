package bank

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxBelvoPages bounds pagination so a misbehaving "next" link cannot loop.
const maxBelvoPages = 50

// Belvo is an aggregator. Credentials are the API secret pair plus the
// link id that identifies the connected bank login.
type Belvo struct{ base }

func NewBelvo(inst Institution, c *Client, loc *time.Location) *Belvo {
	return &Belvo{base{inst: inst, client: c, loc: loc}}
}

type belvoToken struct {
	Access string `json:"access"`
}

type belvoTransaction struct {
	ID          string          `json:"id"`
	ValueDate   string          `json:"value_date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Balance     decimal.Decimal `json:"balance"`
	Reference   string          `json:"reference"`
}

type belvoPage struct {
	Next    string             `json:"next"`
	Results []belvoTransaction `json:"results"`
}

func (a *Belvo) FetchTransactions(ctx context.Context, req FetchRequest) ([]Transaction, error) {
	if err := req.Credentials.Require("secret_id", "secret_password", "link_id"); err != nil {
		return nil, err
	}
	tokenURL, err := a.endpoint("/api/token/", nil)
	if err != nil {
		return nil, err
	}
	var tok belvoToken
	err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := jsonRequest(ctx, http.MethodPost, tokenURL, map[string]string{"id": req.Credentials["link_id"]})
		if err != nil {
			return nil, err
		}
		r.SetBasicAuth(req.Credentials["secret_id"], req.Credentials["secret_password"])
		return r, nil
	}, &tok)
	if err != nil {
		return nil, fmt.Errorf("belvo token: %w", err)
	}
	if tok.Access == "" {
		return nil, fmt.Errorf("%w: belvo: empty access token", ErrConnection)
	}

	next, err := a.endpoint("/api/transactions/", url.Values{
		"link":      {req.Credentials["link_id"]},
		"date_from": {dateParam(req.Range.From, a.loc)},
		"date_to":   {dateParam(req.Range.To, a.loc)},
		"page_size": {"100"},
	})
	if err != nil {
		return nil, err
	}

	out := []Transaction{}
	for pages := 0; next != "" && pages < maxBelvoPages; pages++ {
		pageURL := next
		var page belvoPage
		err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
			r, err := jsonRequest(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, err
			}
			bearer(r, tok.Access)
			return r, nil
		}, &page)
		if err != nil {
			return nil, fmt.Errorf("belvo transactions: %w", err)
		}
		for _, bt := range page.Results {
			date, err := parseDate(bt.ValueDate, a.loc, "2006-01-02", time.RFC3339)
			if err != nil {
				return nil, normalizeErr(a.inst, err)
			}
			var dir Direction
			switch strings.ToUpper(bt.Type) {
			case "INFLOW":
				dir = Credit
			case "OUTFLOW":
				dir = Debit
			}
			amount, dir := signed(bt.Amount, dir)
			out = append(out, Transaction{
				ExternalID:  bt.ID,
				Date:        date,
				Description: strings.TrimSpace(bt.Description),
				Amount:      amount,
				Balance:     bt.Balance,
				Direction:   dir,
				Reference:   strings.TrimSpace(bt.Reference),
				Raw:         rawJSON(bt),
			})
		}
		next = page.Next
	}
	return out, nil
}
