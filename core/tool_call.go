package core

import (
	"encoding/json"
	"strings"
)

// ToolCall is a transient tool invocation request recognized in model
// output. It only lives for the duration of a dispatch.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"-"`
}

// ParseArguments decodes a serialized argument payload. Empty input yields
// an empty map. A JSON string containing an object is unwrapped once, since
// some models double encode their arguments.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, Errorf("core.ParseArguments", ErrInvalidArgument, "decode arguments: %v", err)
	}
	return ArgumentsFrom(v)
}

// ArgumentsFrom normalizes a decoded JSON value into an argument map.
func ArgumentsFrom(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case string:
		return ParseArguments(t)
	default:
		return nil, Errorf("core.ArgumentsFrom", ErrInvalidArgument, "arguments must be an object, got %T", v)
	}
}

// FunctionCall converts the call into its model content form.
func (c ToolCall) FunctionCall() FunctionCall {
	args, _ := json.Marshal(c.Arguments)
	return FunctionCall{ID: c.ID, Name: c.Name, Arguments: string(args)}
}
