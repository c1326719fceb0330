package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// base holds what every HTTP adapter shares.
type base struct {
	inst   Institution
	client *Client
	loc    *time.Location
}

func (b base) Institution() Institution { return b.inst }

func (b base) endpoint(path string, query url.Values) (string, error) {
	root := strings.TrimRight(b.inst.BaseURL, "/")
	if root == "" {
		return "", fmt.Errorf("%w: %s base url not configured", ErrConnection, b.inst.Code)
	}
	u := root + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u, nil
}

func jsonRequest(ctx context.Context, method, u string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func formRequest(ctx context.Context, u string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func bearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

func rawJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func normalizeErr(inst Institution, err error) error {
	return fmt.Errorf("%w: %s: normalize: %v", ErrConnection, inst.Code, err)
}
