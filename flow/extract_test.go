package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		plain string
		tool  string
		args  map[string]any
	}{
		{
			name:  "plain text",
			text:  "  Tell me about joins.  ",
			plain: "Tell me about joins.",
		},
		{
			name:  "tagged call with prose",
			text:  `Let me check.<tool_call>{"name":"rag_search","arguments":{"query":"joins"}}</tool_call>`,
			plain: "Let me check.",
			tool:  "rag_search",
			args:  map[string]any{"query": "joins"},
		},
		{
			name: "tagged call without closing tag",
			text: `<tool_call>{"name":"web_search","arguments":{"query":"go"}}`,
			tool: "web_search",
			args: map[string]any{"query": "go"},
		},
		{
			name:  "fenced json",
			text:  "Scoring now.\n```json\n{\"name\": \"score_task\", \"arguments\": {\"task_id\": \"C1\", \"points\": 8}}\n```",
			plain: "Scoring now.",
			tool:  "score_task",
			args:  map[string]any{"task_id": "C1", "points": 8.0},
		},
		{
			name: "bare object with aliases",
			text: `{"tool": "web_search", "parameters": {"query": "raft"}}`,
			tool: "web_search",
			args: map[string]any{"query": "raft"},
		},
		{
			name: "double encoded arguments",
			text: `{"name": "rag_search", "arguments": "{\"query\":\"index\"}"}`,
			tool: "rag_search",
			args: map[string]any{"query": "index"},
		},
		{
			name: "missing arguments",
			text: `<tool_call>{"name":"web_search"}</tool_call>`,
			tool: "web_search",
			args: map[string]any{},
		},
		{
			name:  "json that is not a call",
			text:  "```json\n{\"a\": 1}\n```",
			plain: "```json\n{\"a\": 1}\n```",
		},
		{
			name:  "malformed tagged payload",
			text:  `<tool_call>{"name": </tool_call>`,
			plain: `<tool_call>{"name": </tool_call>`,
		},
		{
			name:  "think removed",
			text:  "<think>should I search?</think>Hi there",
			plain: "Hi there",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := Extract(tt.text)
			assert.Equal(t, tt.plain, ex.PlainText)
			if tt.tool == "" {
				assert.False(t, ex.IsToolCall())
				return
			}
			require.True(t, ex.IsToolCall())
			assert.Equal(t, tt.tool, ex.ToolCall.Name)
			assert.Equal(t, tt.args, ex.ToolCall.Arguments)
		})
	}
}

func TestStripThink(t *testing.T) {
	assert.Equal(t, "ab", StripThink("a<think>x</think>b"))
	assert.Equal(t, "a", StripThink("a<think>never closed"))
	assert.Equal(t, " answer", StripThink("hidden</think> answer"))
	assert.Equal(t, "ac", StripThink("a<think>1</think>c<think>2</think>"))
}
