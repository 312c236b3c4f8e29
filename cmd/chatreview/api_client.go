package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/internal/sse"
)

// apiClient talks to a running chatreview server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; turns are bounded server side.
	streamClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
	}
}

type apiError struct {
	Status int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.send(ctx, c.httpClient, method, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) send(ctx context.Context, client *http.Client, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		var eb struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) != nil || eb.Detail == "" {
			eb.Detail = strings.TrimSpace(string(raw))
		}
		return nil, &apiError{Status: resp.StatusCode, Detail: eb.Detail}
	}
	return resp, nil
}

// streamTurn requests a model turn and calls onToken for every token event.
// It returns the content of the done event.
func (c *apiClient) streamTurn(ctx context.Context, sessionID string, onToken func(string)) (string, error) {
	resp, err := c.send(ctx, c.streamClient, http.MethodPost, "/sessions/"+sessionID+"/turn", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dec := sse.NewDecoder(resp.Body)
	for {
		var ev core.TokenEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("stream ended without a terminal event")
			}
			return "", err
		}
		switch ev.Type {
		case core.EventToken:
			onToken(ev.Content)
		case core.EventDone:
			return ev.Content, nil
		case core.EventError:
			return "", errors.New(ev.Detail)
		}
	}
}
