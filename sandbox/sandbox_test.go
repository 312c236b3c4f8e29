package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCode_RelaysResultVerbatim(t *testing.T) {
	body := `{"success":true,"stdout":"ok","tests":[{"name":"t1","passed":true}],"extra":42}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req.Language)
		assert.Equal(t, "logreg_basic", req.TestsID)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.CodeURL = srv.URL })
	res, err := c.RunCode(context.Background(), CodeRequest{Language: "python", Code: "print(1)", TestsID: "logreg_basic"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Tests, 1)
	assert.True(t, res.Tests[0].Passed)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestRunSQL_NoRetryOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.SQLURL = srv.URL })
	_, err := c.RunSQL(context.Background(), SQLRequest{SQLScenarioID: "ecommerce_basic", Query: "select 1"})
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunCode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.CodeURL = srv.URL
		o.Timeout = 50 * time.Millisecond
	})
	_, err := c.RunCode(context.Background(), CodeRequest{Language: "python", Code: "x"})
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestRunCode_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(func(o *Options) { o.CodeURL = url })
	_, err := c.RunCode(context.Background(), CodeRequest{Language: "python", Code: "x"})
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	failed := Failed(err)
	assert.False(t, failed.Success)
	assert.NotEmpty(t, failed.Error)
}

func TestRun_EmptyInput(t *testing.T) {
	c := NewClient()
	_, err := c.RunCode(context.Background(), CodeRequest{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = c.RunSQL(context.Background(), SQLRequest{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
