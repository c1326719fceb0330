package bank

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Banorte logs in with username and password for a session token and
// reports signed amounts with day/month/year dates.
type Banorte struct{ base }

func NewBanorte(inst Institution, c *Client, loc *time.Location) *Banorte {
	return &Banorte{base{inst: inst, client: c, loc: loc}}
}

type banorteSession struct {
	Token string `json:"token"`
}

type banorteMovement struct {
	Folio       string `json:"folio"`
	Fecha       string `json:"fecha"`
	Descripcion string `json:"descripcion"`
	Importe     string `json:"importe"`
	Saldo       string `json:"saldo"`
	Referencia  string `json:"referencia"`
}

type banorteMovements struct {
	Movements []banorteMovement `json:"movements"`
}

func (a *Banorte) FetchTransactions(ctx context.Context, req FetchRequest) ([]Transaction, error) {
	if err := req.Credentials.Require("username", "password"); err != nil {
		return nil, err
	}
	loginURL, err := a.endpoint("/api/v1/session", nil)
	if err != nil {
		return nil, err
	}
	var sess banorteSession
	err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodPost, loginURL, map[string]string{
			"username": req.Credentials["username"],
			"password": req.Credentials["password"],
		})
	}, &sess)
	if err != nil {
		return nil, fmt.Errorf("banorte login: %w", err)
	}
	if sess.Token == "" {
		return nil, fmt.Errorf("%w: banorte: empty session token", ErrConnection)
	}

	listURL, err := a.endpoint("/api/v1/accounts/"+url.PathEscape(req.AccountNumber)+"/movements", url.Values{
		"startDate": {dateParam(req.Range.From, a.loc)},
		"endDate":   {dateParam(req.Range.To, a.loc)},
	})
	if err != nil {
		return nil, err
	}
	var page banorteMovements
	err = a.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := jsonRequest(ctx, http.MethodGet, listURL, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("X-Session-Token", sess.Token)
		return r, nil
	}, &page)
	if err != nil {
		return nil, fmt.Errorf("banorte movements: %w", err)
	}

	out := make([]Transaction, 0, len(page.Movements))
	for _, m := range page.Movements {
		date, err := parseDate(m.Fecha, a.loc, "02/01/2006", "2006-01-02")
		if err != nil {
			return nil, normalizeErr(a.inst, err)
		}
		amount, err := parseAmount(m.Importe)
		if err != nil {
			return nil, normalizeErr(a.inst, err)
		}
		balance, err := parseAmount(m.Saldo)
		if err != nil {
			return nil, normalizeErr(a.inst, err)
		}
		amount, dir := signed(amount, "")
		out = append(out, Transaction{
			ExternalID:  m.Folio,
			Date:        date,
			Description: strings.TrimSpace(m.Descripcion),
			Amount:      amount,
			Balance:     balance,
			Direction:   dir,
			Reference:   strings.TrimSpace(m.Referencia),
			Raw:         rawJSON(m),
		})
	}
	return out, nil
}
