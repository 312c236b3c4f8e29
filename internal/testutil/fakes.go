package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/chatreview/sandbox"
	"github.com/hupe1980/chatreview/websearch"
)

// FakeSandbox is a sandbox.Runner recording the requests it receives.
type FakeSandbox struct {
	Result sandbox.Result
	Err    error

	mu    sync.Mutex
	Code  []sandbox.CodeRequest
	Query []sandbox.SQLRequest
}

// RunCode implements sandbox.Runner.
func (f *FakeSandbox) RunCode(_ context.Context, req sandbox.CodeRequest) (sandbox.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Code = append(f.Code, req)
	return f.Result, f.Err
}

// RunSQL implements sandbox.Runner.
func (f *FakeSandbox) RunSQL(_ context.Context, req sandbox.SQLRequest) (sandbox.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Query = append(f.Query, req)
	return f.Result, f.Err
}

// FakeSearcher is a websearch.Searcher returning canned results.
type FakeSearcher struct {
	Results []websearch.Result
	Err     error

	mu      sync.Mutex
	Queries []string
}

// Search implements websearch.Searcher.
func (f *FakeSearcher) Search(_ context.Context, query string, topK int) ([]websearch.Result, error) {
	f.mu.Lock()
	f.Queries = append(f.Queries, query)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if topK > 0 && len(f.Results) > topK {
		return f.Results[:topK], nil
	}
	return f.Results, nil
}
