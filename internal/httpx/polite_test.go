package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"remote"}`))
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/private/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientGetJSON(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(NewRateLimiter(0, 1), ClientOptions{})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/ok", &out))
	assert.Equal(t, "remote", out.Name)
}

func TestClientStatusErrors(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(NewRateLimiter(0, 1), ClientOptions{})

	_, err := c.Get(context.Background(), srv.URL+"/busy")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
	assert.True(t, IsRetryable(err))

	_, err = c.Get(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestClientRespectsRobots(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(NewRateLimiter(0, 1), ClientOptions{RespectRobots: true})

	_, err := c.Get(context.Background(), srv.URL+"/private/list")
	assert.ErrorIs(t, err, ErrRobotsDisallowed)
	assert.False(t, IsRetryable(err))

	body, err := c.Get(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, string(body), "remote")
}

func TestClientTakesTokenPerRequest(t *testing.T) {
	srv := newTestServer(t)
	limiter := NewRateLimiter(1, 3)
	c := NewClient(limiter, ClientOptions{})

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL+"/ok")
		require.NoError(t, err)
	}
	assert.Less(t, limiter.Bucket().Tokens, 1.0)
}

func TestClientUnreachableHostIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(NewRateLimiter(0, 1), ClientOptions{})
	_, err := c.Get(context.Background(), url+"/ok")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestShouldBackoff(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusOK, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldBackoff(tt.status), "status %d", tt.status)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(&FetchError{Status: http.StatusTooManyRequests}))
	assert.False(t, IsRetryable(&FetchError{Status: http.StatusForbidden}))
	assert.True(t, IsRetryable(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsRetryable(errors.New("decode failed: invalid character")))
}
