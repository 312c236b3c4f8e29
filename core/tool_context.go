package core

import (
	"context"

	"github.com/hupe1980/chatreview/logging"
)

// ToolContext provides the constrained surface a tool implementation sees
// while handling one call: cancellation, the owning session and scenario,
// and a logger.
type ToolContext struct {
	ctx            context.Context
	turn           *TurnContext
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent TurnContext and
// unique functionCallID. ctx usually carries the per-dispatch deadline.
func NewToolContext(ctx context.Context, turn *TurnContext, functionCallID string) *ToolContext {
	var logger logging.Logger
	if turn != nil {
		logger = turn.Logger()
	}
	return &ToolContext{
		ctx:            ctx,
		turn:           turn,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string {
	if tc.turn == nil {
		return ""
	}
	return tc.turn.SessionID
}

// TurnID returns the model turn the call belongs to.
func (tc *ToolContext) TurnID() string {
	if tc.turn == nil {
		return ""
	}
	return tc.turn.TurnID
}

// Scenario returns the scenario of the owning session.
func (tc *ToolContext) Scenario() Scenario {
	if tc.turn == nil {
		return Scenario{}
	}
	return tc.turn.Scenario
}

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }
