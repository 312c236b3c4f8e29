package flow

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hupe1980/chatreview/core"
)

const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"
	thinkOpen     = "<think>"
	thinkClose    = "</think>"
)

// Extraction is the outcome of inspecting one complete model response:
// either plain text, or a tool call plus any prose that preceded it.
type Extraction struct {
	PlainText string
	ToolCall  *core.ToolCall
}

// IsToolCall reports whether a tool call was recognized.
func (e Extraction) IsToolCall() bool { return e.ToolCall != nil }

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

// Extract recognizes a tool call embedded in free text. Accepted forms:
//
//	<tool_call>{"name": "...", "arguments": {...}}</tool_call>
//	```json\n{"name": "...", "arguments": {...}}\n```
//	{"name": "...", "arguments": {...}}   (the whole response)
//
// Anything that does not parse as such a payload is plain text.
func Extract(text string) Extraction {
	text = StripThink(text)

	if i := strings.Index(text, toolCallOpen); i >= 0 {
		body := text[i+len(toolCallOpen):]
		if j := strings.Index(body, toolCallClose); j >= 0 {
			body = body[:j]
		}
		if call, ok := parseCallPayload(body); ok {
			return Extraction{PlainText: strings.TrimSpace(text[:i]), ToolCall: call}
		}
	}

	if m := fencedBlock.FindStringSubmatchIndex(text); m != nil {
		if call, ok := parseCallPayload(text[m[2]:m[3]]); ok {
			prose := strings.TrimSpace(text[:m[0]] + text[m[1]:])
			return Extraction{PlainText: prose, ToolCall: call}
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		if call, ok := parseCallPayload(trimmed); ok {
			return Extraction{ToolCall: call}
		}
	}
	return Extraction{PlainText: trimmed}
}

// parseCallPayload decodes {"name": ..., "arguments": ...}. The aliases
// tool/function and args/parameters are accepted as well.
func parseCallPayload(s string) (*core.ToolCall, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}

	var name string
	for _, k := range []string{"name", "tool", "function"} {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) != "" {
			name = strings.TrimSpace(v)
			break
		}
	}
	if name == "" {
		return nil, false
	}

	var argsVal any
	for _, k := range []string{"arguments", "args", "parameters"} {
		if v, ok := raw[k]; ok {
			argsVal = v
			break
		}
	}
	args, err := core.ArgumentsFrom(argsVal)
	if err != nil {
		return nil, false
	}
	id, _ := raw["id"].(string)
	return &core.ToolCall{ID: id, Name: name, Arguments: args}, true
}

// StripThink removes <think> reasoning blocks. An unterminated block hides
// everything after its opening tag; a dangling closing tag hides everything
// before it.
func StripThink(text string) string {
	for {
		i := strings.Index(text, thinkOpen)
		if i < 0 {
			break
		}
		j := strings.Index(text[i:], thinkClose)
		if j < 0 {
			text = text[:i]
			break
		}
		text = text[:i] + text[i+j+len(thinkClose):]
	}
	if j := strings.Index(text, thinkClose); j >= 0 {
		text = text[j+len(thinkClose):]
	}
	return text
}
