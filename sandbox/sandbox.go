// Package sandbox is the request/response boundary to the remote code and SQL
// execution services. The client performs exactly one attempt per call: a
// transport failure is returned to the caller as is, never retried.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/logging"
)

// CodeRequest is submitted to the code sandbox.
type CodeRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	TestsID  string `json:"tests_id,omitempty"`
}

// SQLRequest is submitted to the SQL sandbox.
type SQLRequest struct {
	SQLScenarioID string `json:"sql_scenario_id"`
	Query         string `json:"query"`
}

// TestOutcome is the result of one sandbox test case.
type TestOutcome struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Result is the structured sandbox answer. Raw keeps the body exactly as the
// sandbox returned it so it can be relayed verbatim.
type Result struct {
	Success bool            `json:"success"`
	Stdout  string          `json:"stdout,omitempty"`
	Stderr  string          `json:"stderr,omitempty"`
	Details string          `json:"details,omitempty"`
	Error   string          `json:"error,omitempty"`
	Tests   []TestOutcome   `json:"tests,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// MarshalJSON relays the raw sandbox body when present.
func (r Result) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain Result
	return json.Marshal(plain(r))
}

// Failed builds the result reported for a submission whose transport failed.
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// String renders a short form for dialogue system messages.
func (r Result) String() string {
	if len(r.Raw) > 0 {
		return string(r.Raw)
	}
	b, _ := json.Marshal(r)
	return string(b)
}

// Runner executes submissions. Implemented by *Client.
type Runner interface {
	RunCode(ctx context.Context, req CodeRequest) (Result, error)
	RunSQL(ctx context.Context, req SQLRequest) (Result, error)
}

// Options configure a Client.
type Options struct {
	CodeURL    string
	SQLURL     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client talks JSON over HTTP to both sandboxes.
type Client struct {
	opts Options
}

// NewClient creates a sandbox client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		CodeURL: "http://localhost:8001/run_code",
		SQLURL:  "http://localhost:8002/run_sql",
		Timeout: 30 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{opts: opts}
}

// RunCode submits code to the code sandbox.
func (c *Client) RunCode(ctx context.Context, req CodeRequest) (Result, error) {
	if req.Code == "" {
		return Result{}, core.Errorf("sandbox.RunCode", core.ErrInvalidArgument, "code is empty")
	}
	return c.post(ctx, "sandbox.RunCode", c.opts.CodeURL, req)
}

// RunSQL submits a query to the SQL sandbox.
func (c *Client) RunSQL(ctx context.Context, req SQLRequest) (Result, error) {
	if req.Query == "" {
		return Result{}, core.Errorf("sandbox.RunSQL", core.ErrInvalidArgument, "query is empty")
	}
	return c.post(ctx, "sandbox.RunSQL", c.opts.SQLURL, req)
}

func (c *Client) post(ctx context.Context, op, url string, payload any) (Result, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, core.E(op, core.ErrInvalidArgument, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, core.E(op, core.ErrUpstreamUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		kind := core.ErrUpstreamUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = core.ErrTimeout
		}
		c.opts.Logger.Warn("sandbox.request.failed", "url", url, "error", err.Error())
		return Result{}, core.E(op, kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, core.E(op, core.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.opts.Logger.Warn("sandbox.request.status", "url", url, "status", resp.StatusCode)
		return Result{}, core.E(op, core.ErrUpstreamUnavailable, fmt.Errorf("sandbox returned %s: %s", resp.Status, truncate(raw, 200)))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, core.E(op, core.ErrUpstreamUnavailable, fmt.Errorf("decode sandbox response: %w", err))
	}
	res.Raw = json.RawMessage(raw)

	c.opts.Logger.Debug("sandbox.request.complete", "url", url, "success", res.Success, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
