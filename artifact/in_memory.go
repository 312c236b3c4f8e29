package artifact

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/chatreview/core"
)

// Kind tells code and SQL submissions apart.
type Kind string

const (
	KindCode Kind = "code"
	KindSQL  Kind = "sql"
)

// Submission is one candidate solution and its sandbox outcome.
type Submission struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TaskID    string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Language  string    `json:"language,omitempty"`
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Output    string    `json:"output,omitempty"`
	Created   time.Time `json:"created_at"`
}

// Store archives submissions.
type Store interface {
	Save(ctx context.Context, sub Submission) error
	Get(ctx context.Context, sessionID, id string) (Submission, error)
	List(ctx context.Context, sessionID string) ([]Submission, error)
}

// InMemoryStore is a process-local Store.
//
// Layout: sessionID -> submissions in arrival order
type InMemoryStore struct {
	mu   sync.RWMutex
	subs map[string][]Submission
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{subs: make(map[string][]Submission)}
}

// Save appends sub. A missing id or timestamp is filled in.
func (s *InMemoryStore) Save(_ context.Context, sub Submission) error {
	if sub.SessionID == "" {
		return core.Errorf("artifact.Save", core.ErrInvalidArgument, "session id is required")
	}
	if sub.ID == "" {
		sub.ID = core.NewID()
	}
	if sub.Created.IsZero() {
		sub.Created = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.SessionID] = append(s.subs[sub.SessionID], sub)
	return nil
}

// Get returns one submission or an ErrNotFound error.
func (s *InMemoryStore) Get(_ context.Context, sessionID, id string) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs[sessionID] {
		if sub.ID == id {
			return sub, nil
		}
	}
	return Submission{}, core.Errorf("artifact.Get", core.ErrNotFound, "submission %q", id)
}

// List returns the session's submissions oldest first. The slice is a copy.
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Submission, len(s.subs[sessionID]))
	copy(out, s.subs[sessionID])
	return out, nil
}
