// Package flow drives one model turn: it assembles the request through
// pluggable processors, streams the model output as TokenEvents, recognizes
// in-band or native tool calls, dispatches them and re-issues the request
// until the model produces a plain answer or the call cap is reached.
package flow

import (
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/tool"
)

// TurnInput is the read-only view of a session that request processors
// build a model request from. It is captured once at the start of a turn.
type TurnInput struct {
	Role          core.Role
	Scenario      core.Scenario
	Messages      []core.Message
	Scores        []core.Score
	CurrentTaskID string
	RAGAvailable  bool
}

// Dispatcher resolves tool calls recognized in model output.
type Dispatcher interface {
	Dispatch(turn *core.TurnContext, call core.ToolCall) tool.Result
	Definitions() []model.ToolDefinition
}

// RequestProcessor processes the request before it is sent to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(turn *core.TurnContext, in *TurnInput, req *model.Request) error
}
