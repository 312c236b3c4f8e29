package tool

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds the JSON schema describing the accepted arguments
//   - Validates model supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch or rejected values
//     EXECUTION_ERROR   -> underlying function returned an error
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	echo := NewFunctionTool(
//	  "echo",
//	  "Repeat the given text",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{"text": map[string]any{"type": "string"}},
//	    "required": []string{"text"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["text"], nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool derives the parameter schema from T and decodes validated
// arguments into a T before calling fn.
//
//	type ScoreArgs struct {
//	  TaskID string  `json:"task_id" jsonschema_description:"Task identifier"`
//	  Points float64 `json:"points"`
//	}
func NewTypedTool[T any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args T) (any, error),
) *FunctionTool {
	var zero T
	schema := util.CreateSchema(&zero)
	return NewFunctionTool(name, description, schema, func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args T
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, core.Errorf("tool."+name, core.ErrInvalidArgument, "encode arguments: %v", err)
		}
		if err := json.Unmarshal(b, &args); err != nil {
			return nil, core.Errorf("tool."+name, core.ErrInvalidArgument, "decode arguments: %v", err)
		}
		return fn(tc, args)
	})
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes the
// underlying function. Failures are returned as *ToolError.
//
// Logging Fields:
//
//	tool: tool name
//	fc_id: function call identifier (correlates model request & tool execution)
//	duration_ms: execution time in milliseconds
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if args == nil {
		args = map[string]any{}
	}
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     core.E("tool."+t.name, core.ErrInvalidArgument, err),
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		toolErr := wrapError(t.name, err)
		logger.Warn("tool.call.error", "tool", t.name, "code", toolErr.Code, "error", toolErr.Message)
		return nil, toolErr
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
