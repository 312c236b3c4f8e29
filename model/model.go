package model

import (
	"context"

	"github.com/hupe1980/chatreview/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input assembled for one round of a turn.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Contents     []core.Content   `json:"contents"`     // Dialogue converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
//
// Partial responses carry text deltas. The final response (Partial == false)
// carries the aggregated text and every complete native function call.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive a streamed completion.
// Both channels are closed when generation ends; at most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Pinger is implemented by models that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a model's reachability. Models without a dedicated probe are
// asked for a tiny completion instead.
func Ping(ctx context.Context, m Model) error {
	if p, ok := m.(Pinger); ok {
		return p.Ping(ctx)
	}
	respCh, errCh := m.Generate(ctx, Request{
		Instructions: "Reply with OK.",
		Contents:     []core.Content{core.NewTextContent("user", "ping")},
	})
	for range respCh {
	}
	if err := <-errCh; err != nil {
		return core.E("model.Ping", core.KindOf(err), err)
	}
	return nil
}
