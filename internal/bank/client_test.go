package bank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastClient() *Client {
	return NewClient(ClientOptions{Timeout: time.Second, MaxRetries: 2, InitialBackoff: time.Millisecond})
}

func getJSON(u string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodGet, u, nil)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, fastClient().Do(context.Background(), getJSON(srv.URL), &out))
	require.True(t, out.OK)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := fastClient().Do(context.Background(), getJSON(srv.URL), nil)
	require.ErrorIs(t, err, ErrConnection)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientAuthFailureIsPermanent(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := fastClient().Do(context.Background(), getJSON(srv.URL), nil)
	require.ErrorIs(t, err, ErrConnection)
	require.ErrorIs(t, err, ErrAuth)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientBadJSONIsConnectionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var out map[string]string
	err := fastClient().Do(context.Background(), getJSON(srv.URL), &out)
	require.ErrorIs(t, err, ErrConnection)
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: 50 * time.Millisecond, MaxRetries: 0})
	start := time.Now()
	err := c.Do(context.Background(), getJSON(srv.URL), nil)
	require.ErrorIs(t, err, ErrConnection)
	require.Less(t, time.Since(start), time.Second)
}
