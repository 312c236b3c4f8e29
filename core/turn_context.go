package core

import (
	"context"

	"github.com/hupe1980/chatreview/logging"
)

// TurnContext carries the execution scope of one model turn: the ambient
// cancellation Context, identifiers, the scenario being interviewed on and
// the limiter bounding chained tool calls.
type TurnContext struct {
	Context   context.Context
	SessionID string
	TurnID    string
	Scenario  Scenario
	Limiter   *CallLimiter

	*loggerAdapter
}

// NewTurnContext constructs a TurnContext. maxToolCalls == 0 disables the cap.
func NewTurnContext(
	ctx context.Context,
	sessionID, turnID string,
	scenario Scenario,
	maxToolCalls int,
	logger logging.Logger,
) *TurnContext {
	return &TurnContext{
		Context:       ctx,
		SessionID:     sessionID,
		TurnID:        turnID,
		Scenario:      scenario,
		Limiter:       NewCallLimiter(maxToolCalls),
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (tc *TurnContext) Done() <-chan struct{} { return tc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (tc *TurnContext) Err() error { return tc.Context.Err() }

// WithContext returns a shallow copy bound to ctx. The limiter is shared.
func (tc *TurnContext) WithContext(ctx context.Context) *TurnContext {
	cp := *tc
	cp.Context = ctx
	return &cp
}
