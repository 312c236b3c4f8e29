package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/chatreview/core"
)

// Round scripts one Generate call of a ScriptedModel.
type Round struct {
	Chunks []string            // text deltas streamed in order
	Calls  []core.FunctionCall // native function calls in the final response
	Err    error               // sent after the chunks when set
	Block  bool                // wait for cancellation after the chunks
	Delay  time.Duration       // pause before every chunk
}

// Text returns a round that streams text split into chunks of n runes.
func Text(text string, n int) Round {
	if n <= 0 {
		return Round{Chunks: []string{text}}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		k := min(n, len(runes))
		chunks = append(chunks, string(runes[:k]))
		runes = runes[k:]
	}
	return Round{Chunks: chunks}
}

// ScriptedModel is a deterministic in-memory Model for tests and examples.
// Every Generate call consumes the next scripted round. With Repeat set the
// last round is replayed once the script is exhausted.
type ScriptedModel struct {
	Repeat bool

	mu       sync.Mutex
	info     Info
	rounds   []Round
	next     int
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel playing rounds in order.
func NewScriptedModel(rounds ...Round) *ScriptedModel {
	return &ScriptedModel{
		info:   Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		rounds: rounds,
	}
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Generate has been called.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) take(req Request) (Round, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.next < len(m.rounds) {
		r := m.rounds[m.next]
		m.next++
		return r, true
	}
	if m.Repeat && len(m.rounds) > 0 {
		return m.rounds[len(m.rounds)-1], true
	}
	return Round{}, false
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)
	round, ok := m.take(req)

	go func() {
		defer close(out)
		defer close(errCh)
		if !ok {
			errCh <- fmt.Errorf("scripted model: no round left for call %d", m.Calls())
			return
		}

		var text strings.Builder
		for _, chunk := range round.Chunks {
			if round.Delay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(round.Delay):
				}
			}
			text.WriteString(chunk)
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Response{Partial: true, Content: core.NewTextContent("assistant", chunk)}:
			}
		}
		if round.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if round.Err != nil {
			errCh <- round.Err
			return
		}

		parts := make([]core.Part, 0, len(round.Calls)+1)
		if text.Len() > 0 {
			parts = append(parts, core.TextPart{Text: text.String()})
		}
		reason := "stop"
		for _, c := range round.Calls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: c})
			reason = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Response{Content: core.Content{Role: "assistant", Parts: parts}, FinishReason: reason}:
		}
	}()
	return out, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
