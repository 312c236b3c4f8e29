package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgBody = `{
  "Heading": "Go",
  "AbstractText": "Go is a programming language.",
  "AbstractURL": "https://go.dev",
  "RelatedTopics": [
    {"Text": "Goroutines - lightweight threads", "FirstURL": "https://go.dev/goroutines"},
    {"Name": "Tools", "Topics": [
      {"Text": "gofmt formats code", "FirstURL": "https://go.dev/gofmt"},
      {"Text": "go vet finds bugs", "FirstURL": "https://go.dev/vet"}
    ]}
  ]
}`

func TestSearch_DuckDuckGo(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(ddgBody))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.URL = srv.URL })
	res, err := c.Search(context.Background(), "golang", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "https://go.dev", res[0].URL)
	assert.Equal(t, "https://go.dev/gofmt", res[2].URL)

	// cached
	_, err = c.Search(context.Background(), "golang", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_HTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("top_k"))
		_, _ = w.Write([]byte(`{"results":[{"title":"a","url":"u1","snippet":"s"},{"title":"b","url":"u2","snippet":"s"},{"title":"c","url":"u3","snippet":"s"}]}`))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.Backend = BackendHTTP
		o.URL = srv.URL + "/search"
		o.CacheTTL = 0
	})
	res, err := c.Search(context.Background(), "joins", 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestSearch_CacheExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"RelatedTopics":[]}`))
	}))
	defer srv.Close()

	now := time.Now()
	c := NewClient(func(o *Options) {
		o.URL = srv.URL
		o.CacheTTL = time.Minute
	})
	c.now = func() time.Time { return now }

	res, err := c.Search(context.Background(), "nothing", 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	now = now.Add(2 * time.Minute)
	_, err = c.Search(context.Background(), "nothing", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.URL = srv.URL
		o.Timeout = 20 * time.Millisecond
	})
	_, err := c.Search(context.Background(), "slow", 3)
	assert.ErrorIs(t, err, core.ErrTimeout)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	c = NewClient(func(o *Options) { o.URL = bad.URL })
	_, err = c.Search(context.Background(), "x", 3)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	_, err = c.Search(context.Background(), "  ", 3)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
