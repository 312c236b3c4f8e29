package testutil

import (
	"github.com/hupe1980/chatreview/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").Candidate("hi", "T1").Score(task, 4).Build()
type SessionBuilder struct {
	id         string
	roleID     string
	scenarioID string
	messages   []core.Message
	scores     []core.Score
	completed  bool
}

// NewSessionBuilder creates a new builder for a session with the given id
// bound to the demo role and scenario.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, roleID: "ds", scenarioID: "ds-junior-ml"}
}

// For binds the session to role and scenario (chainable).
func (b *SessionBuilder) For(roleID, scenarioID string) *SessionBuilder {
	b.roleID, b.scenarioID = roleID, scenarioID
	return b
}

// Candidate appends a candidate message (chainable).
func (b *SessionBuilder) Candidate(text, taskID string) *SessionBuilder {
	b.messages = append(b.messages, core.NewMessage(b.id, core.SenderCandidate, text, taskID))
	return b
}

// Model appends a model message (chainable).
func (b *SessionBuilder) Model(text string) *SessionBuilder {
	b.messages = append(b.messages, core.NewMessage(b.id, core.SenderModel, text, ""))
	return b
}

// Score appends a score for task (chainable). No validation is applied.
func (b *SessionBuilder) Score(task core.Task, awarded float64) *SessionBuilder {
	b.scores = append(b.scores, core.NewScore(b.id, task, awarded, "test"))
	return b
}

// Completed marks the built session as completed (chainable).
func (b *SessionBuilder) Completed() *SessionBuilder {
	b.completed = true
	return b
}

// Build returns a *core.Session with the appended messages and scores.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.roleID, b.scenarioID)
	for _, m := range b.messages {
		_, _ = s.AppendMessage(m)
	}
	for _, sc := range b.scores {
		_ = s.AppendScore(sc, false)
	}
	if b.completed {
		_ = s.Complete()
	}
	return s
}

// Snapshot returns the snapshot of the built session.
func (b *SessionBuilder) Snapshot() core.SessionSnapshot {
	return b.Build().Snapshot()
}
