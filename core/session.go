package core

import (
	"context"
	"sync"
	"time"
)

// SessionState is the lifecycle state of an interview session.
type SessionState string

const (
	StateCreated       SessionState = "created"
	StateActive        SessionState = "active"
	StateAwaitingModel SessionState = "awaiting_model"
	StateCompleted     SessionState = "completed"
)

// Session is one candidate's run through a scenario. It is safe for
// concurrent access.
//
// Contract:
//   - Messages and Scores are append-only; readers receive defensive copies
//   - At most one model turn is in flight (StateAwaitingModel)
//   - Candidate messages are rejected while a turn is in flight or after completion
//   - Completion requested during a turn takes effect when the turn ends
type Session struct {
	ID         string
	RoleID     string
	ScenarioID string
	Created    time.Time

	mu                sync.RWMutex
	state             SessionState
	currentTaskID     string
	messages          []Message
	scores            []Score
	updated           time.Time
	finished          time.Time
	turnID            string
	completeAfterTurn bool
}

// NewSession creates a session in StateCreated.
func NewSession(id, roleID, scenarioID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		RoleID:     roleID,
		ScenarioID: scenarioID,
		Created:    now,
		state:      StateCreated,
		messages:   []Message{},
		scores:     []Score{},
		updated:    now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentTaskID returns the task the dialogue is currently focused on.
func (s *Session) CurrentTaskID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTaskID
}

// SetCurrentTask moves the dialogue focus to taskID.
func (s *Session) SetCurrentTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTaskID = taskID
	s.updated = time.Now().UTC()
}

// TurnID returns the id of the in-flight turn, or "" when idle.
func (s *Session) TurnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnID
}

// BeginTurn moves the session into StateAwaitingModel. It fails with
// ErrInvalidState if a turn is already in flight or the session is completed.
func (s *Session) BeginTurn(turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateAwaitingModel:
		return Errorf("session.BeginTurn", ErrInvalidState, "session %s already awaiting model", s.ID)
	case StateCompleted:
		return Errorf("session.BeginTurn", ErrInvalidState, "session %s is completed", s.ID)
	}
	s.state = StateAwaitingModel
	s.turnID = turnID
	s.updated = time.Now().UTC()
	return nil
}

// EndTurn releases the in-flight turn identified by turnID and returns the
// resulting state. Calls with a stale turn id are ignored.
func (s *Session) EndTurn(turnID string) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingModel || s.turnID != turnID {
		return s.state
	}
	s.turnID = ""
	now := time.Now().UTC()
	s.updated = now
	if s.completeAfterTurn {
		s.completeAfterTurn = false
		s.state = StateCompleted
		s.finished = now
		return s.state
	}
	s.state = StateActive
	return s.state
}

// AppendMessage appends m to the dialogue and returns the stored copy.
// Candidate messages move a fresh session to StateActive and are rejected
// with ErrInvalidState while awaiting the model or after completion.
func (s *Session) AppendMessage(m Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Sender == SenderCandidate {
		switch s.state {
		case StateAwaitingModel:
			return Message{}, Errorf("session.AppendMessage", ErrInvalidState, "session %s is awaiting the model", s.ID)
		case StateCompleted:
			return Message{}, Errorf("session.AppendMessage", ErrInvalidState, "session %s is completed", s.ID)
		case StateCreated:
			s.state = StateActive
		}
		if m.TaskID != "" {
			s.currentTaskID = m.TaskID
		}
	}
	m.SessionID = s.ID
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Created.IsZero() {
		m.Created = time.Now().UTC()
	}
	s.messages = append(s.messages, m)
	s.updated = time.Now().UTC()
	return m, nil
}

// AppendScore appends sc. With unique set a second score for the same task
// fails with ErrInvalidScore. Completed sessions reject scores.
func (s *Session) AppendScore(sc Score, unique bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted {
		return Errorf("session.AppendScore", ErrInvalidState, "session %s is completed", s.ID)
	}
	if unique {
		for _, prev := range s.scores {
			if prev.TaskID == sc.TaskID {
				return Errorf("session.AppendScore", ErrInvalidScore, "task %s already scored", sc.TaskID)
			}
		}
	}
	sc.SessionID = s.ID
	s.scores = append(s.scores, sc)
	s.updated = time.Now().UTC()
	return nil
}

// Complete moves the session to StateCompleted. Completing a completed
// session is a no-op; completing during a turn fails with ErrInvalidState.
func (s *Session) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCompleted:
		return nil
	case StateAwaitingModel:
		return Errorf("session.Complete", ErrInvalidState, "session %s is awaiting the model", s.ID)
	}
	now := time.Now().UTC()
	s.state = StateCompleted
	s.finished = now
	s.updated = now
	return nil
}

// CompleteWhenIdle completes the session now, or defers completion to the
// end of the in-flight turn. It reports whether the session is completed on
// return.
func (s *Session) CompleteWhenIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCompleted:
		return true
	case StateAwaitingModel:
		s.completeAfterTurn = true
		return false
	}
	now := time.Now().UTC()
	s.state = StateCompleted
	s.finished = now
	s.updated = now
	return true
}

// Messages returns a defensive copy of the dialogue.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessageCount returns the number of appended messages.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Scores returns a defensive copy of the score history.
func (s *Session) Scores() []Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Score, len(s.scores))
	copy(out, s.scores)
	return out
}

// LatestScores returns the most recent score per task.
func (s *Session) LatestScores() map[string]Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]Score, len(s.scores))
	for _, sc := range s.scores {
		latest[sc.TaskID] = sc
	}
	return latest
}

// SessionSnapshot is a point-in-time copy of a session used for transport
// and persistence.
type SessionSnapshot struct {
	ID            string       `json:"id"`
	RoleID        string       `json:"role_id"`
	ScenarioID    string       `json:"scenario_id"`
	State         SessionState `json:"state"`
	CurrentTaskID string       `json:"current_task_id,omitempty"`
	Messages      []Message    `json:"messages"`
	Scores        []Score      `json:"scores"`
	Created       time.Time    `json:"started_at"`
	Updated       time.Time    `json:"updated_at"`
	Finished      *time.Time   `json:"finished_at,omitempty"`
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := SessionSnapshot{
		ID:            s.ID,
		RoleID:        s.RoleID,
		ScenarioID:    s.ScenarioID,
		State:         s.state,
		CurrentTaskID: s.currentTaskID,
		Messages:      make([]Message, len(s.messages)),
		Scores:        make([]Score, len(s.scores)),
		Created:       s.Created,
		Updated:       s.updated,
	}
	copy(snap.Messages, s.messages)
	copy(snap.Scores, s.scores)
	if !s.finished.IsZero() {
		f := s.finished
		snap.Finished = &f
	}
	return snap
}

// RestoreSession rebuilds a session from a snapshot. A snapshot taken while
// awaiting the model is restored as active since the turn cannot survive.
func RestoreSession(snap SessionSnapshot) *Session {
	s := &Session{
		ID:            snap.ID,
		RoleID:        snap.RoleID,
		ScenarioID:    snap.ScenarioID,
		Created:       snap.Created,
		state:         snap.State,
		currentTaskID: snap.CurrentTaskID,
		messages:      make([]Message, len(snap.Messages)),
		scores:        make([]Score, len(snap.Scores)),
		updated:       snap.Updated,
	}
	copy(s.messages, snap.Messages)
	copy(s.scores, snap.Scores)
	if snap.Finished != nil {
		s.finished = *snap.Finished
	}
	if s.state == StateAwaitingModel {
		s.state = StateActive
	}
	return s
}

// SessionStore archives session snapshots.
type SessionStore interface {
	Save(ctx context.Context, snap SessionSnapshot) error
	Get(ctx context.Context, id string) (SessionSnapshot, error)
	List(ctx context.Context) ([]string, error)
}
