package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a dialogue message.
type Sender string

const (
	SenderCandidate Sender = "candidate"
	SenderModel     Sender = "model"
	SenderSystem    Sender = "system"
)

// ParseSender validates a sender name received from a client.
func ParseSender(s string) (Sender, error) {
	switch Sender(s) {
	case SenderCandidate, SenderModel, SenderSystem:
		return Sender(s), nil
	}
	return "", Errorf("core.ParseSender", ErrInvalidArgument, "unknown sender %q", s)
}

// Message is one entry of a session's dialogue. After it has been appended to
// a session it is treated as immutable.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	TaskID    string    `json:"task_id,omitempty"`
	Created   time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh id and a UTC timestamp.
func NewMessage(sessionID string, sender Sender, text, taskID string) Message {
	return Message{
		ID:        NewID(),
		SessionID: sessionID,
		Sender:    sender,
		Text:      text,
		TaskID:    taskID,
		Created:   time.Now().UTC(),
	}
}

// ContentRole maps the sender onto the conversation role used by models.
func (m Message) ContentRole() string {
	switch m.Sender {
	case SenderCandidate:
		return "user"
	case SenderModel:
		return "assistant"
	default:
		return "system"
	}
}

// Content converts the message into model input.
func (m Message) Content() Content { return NewTextContent(m.ContentRole(), m.Text) }

// Score is an awarded number of points for one task. Max is copied from the
// task when the score is recorded and never re-read.
type Score struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TaskID    string    `json:"task_id"`
	Awarded   float64   `json:"awarded"`
	Max       float64   `json:"max_points"`
	Rationale string    `json:"rationale,omitempty"`
	Created   time.Time `json:"created_at"`
}

// NewScore creates a score for task. Validation is the caller's job.
func NewScore(sessionID string, task Task, awarded float64, rationale string) Score {
	return Score{
		ID:        NewID(),
		SessionID: sessionID,
		TaskID:    task.ID,
		Awarded:   awarded,
		Max:       task.MaxPoints,
		Rationale: rationale,
		Created:   time.Now().UTC(),
	}
}

// Ratio returns Awarded/Max, or 0 when Max is zero.
func (s Score) Ratio() float64 {
	if s.Max <= 0 {
		return 0
	}
	return s.Awarded / s.Max
}

// String renders the score for logs and system messages.
func (s Score) String() string {
	return fmt.Sprintf("%s: %g/%g", s.TaskID, s.Awarded, s.Max)
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
