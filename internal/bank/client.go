package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	maxBodyBytes      = 8 << 20
)

// ClientOptions tunes the HTTP client shared by adapters.
type ClientOptions struct {
	// Timeout bounds every single HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for
	// network errors, 429 and 5xx responses.
	MaxRetries int
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
	HTTPClient     *http.Client
}

// Client performs JSON requests against institution APIs with a per-call
// timeout and bounded exponential retry.
type Client struct {
	http       *http.Client
	timeout    time.Duration
	maxRetries int
	initial    time.Duration
}

// NewClient builds a client from opts, filling defaults.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		http:       opts.HTTPClient,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialBackoff,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.initial <= 0 {
		c.initial = 500 * time.Millisecond
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Do sends the request produced by build and decodes a JSON body into out.
// build is called once per attempt so request bodies can be replayed.
// Every returned error wraps ErrConnection; 401 and 403 also wrap ErrAuth.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error), out interface{}) error {
	attempt := func() error {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := build(actx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil || len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return wrapConnErr(err)
	}
	return nil
}

func wrapConnErr(err error) error {
	var serr *StatusError
	if errors.As(err, &serr) && (serr.Status == http.StatusUnauthorized || serr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %w: %v", ErrConnection, ErrAuth, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
