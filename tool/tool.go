// Package tool implements the tool calling subsystem the interviewer model
// uses during a turn: schema validated arguments, consistent error codes and
// a dispatcher that normalizes every outcome into a result the model can
// consume on its next round.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/internal/util"
)

// Tool defines a capability the model may invoke in-band.
//
// Tool implementations should:
//   - Provide a snake_case name and a description aimed at the model
//   - Define a JSON schema for parameters
//   - Be safe for concurrent use, since sessions run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a description of what the tool does, shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with validated arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnsupported = "UNSUPPORTED_TOOL"
	CodeTimeout     = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Err     error  `json:"-"`                 // Classified cause
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the classified cause so errors.Is matches core kinds.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// wrapError converts any error returned by a tool implementation into a
// *ToolError, choosing the code from the error kind.
func wrapError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	code := CodeExecution
	switch core.KindOf(err) {
	case core.ErrInvalidArgument, core.ErrInvalidScore:
		code = CodeValidation
	case core.ErrTimeout:
		code = CodeTimeout
	case core.ErrUnsupportedTool:
		code = CodeUnsupported
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: code, Err: err}
}
