package session

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/chatreview/core"
)

// InMemoryStore is a volatile SessionStore keeping snapshots in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Snapshots are copied on the way in and out so
// callers cannot mutate stored state.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]core.SessionSnapshot
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[string]core.SessionSnapshot)}
}

// Save stores (or replaces) the snapshot for snap.ID.
func (s *InMemoryStore) Save(_ context.Context, snap core.SessionSnapshot) error {
	if snap.ID == "" {
		return core.Errorf("session.Save", core.ErrInvalidArgument, "snapshot without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = clone(snap)
	return nil
}

// Get returns the stored snapshot or ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (core.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return core.SessionSnapshot{}, core.Errorf("session.Get", core.ErrNotFound, "session %s", id)
	}
	return clone(snap), nil
}

// List returns the ids of all stored sessions in lexical order.
func (s *InMemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func clone(snap core.SessionSnapshot) core.SessionSnapshot {
	out := snap
	out.Messages = append([]core.Message(nil), snap.Messages...)
	out.Scores = append([]core.Score(nil), snap.Scores...)
	if snap.Finished != nil {
		f := *snap.Finished
		out.Finished = &f
	}
	return out
}
