package core

import "encoding/json"

// TokenEventType discriminates the events of a model turn stream.
type TokenEventType string

const (
	EventToken    TokenEventType = "token"
	EventToolCall TokenEventType = "tool_call"
	EventError    TokenEventType = "error"
	EventDone     TokenEventType = "done"
)

// TokenEvent is one element of a model turn stream. A stream is a finite
// sequence of token and tool_call events terminated by exactly one error or
// done event.
type TokenEvent struct {
	Type      TokenEventType
	Content   string         // token text, or the final answer for done
	Name      string         // tool name for tool_call
	Arguments map[string]any // tool arguments for tool_call
	Detail    string         // human readable failure for error
	Err       error          // classified cause for error, not serialized
}

// TokenChunk returns a token event.
func TokenChunk(text string) TokenEvent { return TokenEvent{Type: EventToken, Content: text} }

// ToolCallEvent returns a tool_call event for call.
func ToolCallEvent(call ToolCall) TokenEvent {
	return TokenEvent{Type: EventToolCall, Name: call.Name, Arguments: call.Arguments}
}

// ErrorEvent returns a terminal error event.
func ErrorEvent(err error) TokenEvent {
	return TokenEvent{Type: EventError, Detail: err.Error(), Err: err}
}

// DoneEvent returns a terminal done event carrying the final answer.
func DoneEvent(text string) TokenEvent { return TokenEvent{Type: EventDone, Content: text} }

// IsTerminal reports whether the event ends the stream.
func (e TokenEvent) IsTerminal() bool { return e.Type == EventError || e.Type == EventDone }

// MarshalJSON renders the wire shape for the event type, e.g.
// {"type":"token","content":"Hi"} or {"type":"error","detail":"..."}.
func (e TokenEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventToolCall:
		args := e.Arguments
		if args == nil {
			args = map[string]any{}
		}
		return json.Marshal(struct {
			Type      TokenEventType `json:"type"`
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}{e.Type, e.Name, args})
	case EventError:
		return json.Marshal(struct {
			Type   TokenEventType `json:"type"`
			Detail string         `json:"detail"`
		}{e.Type, e.Detail})
	default:
		return json.Marshal(struct {
			Type    TokenEventType `json:"type"`
			Content string         `json:"content"`
		}{e.Type, e.Content})
	}
}

// UnmarshalJSON accepts the wire shape produced by MarshalJSON.
func (e *TokenEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      TokenEventType `json:"type"`
		Content   string         `json:"content"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Detail    string         `json:"detail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = TokenEvent{Type: raw.Type, Content: raw.Content, Name: raw.Name, Arguments: raw.Arguments, Detail: raw.Detail}
	return nil
}
