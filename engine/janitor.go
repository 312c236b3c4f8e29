package engine

import (
	"time"

	"github.com/hupe1980/chatreview/core"
)

// EvictArchived drops completed sessions that were archived at least
// Options.Retention before now from memory and returns how many were
// evicted. Evicted sessions are reloaded from the store on access.
func (e *Engine) EvictArchived(now time.Time) int {
	e.mu.Lock()
	evicted := 0
	for id, ent := range e.sessions {
		if ent.archived.IsZero() || now.Sub(ent.archived) < e.opts.Retention {
			continue
		}
		if ent.sess.State() != core.StateCompleted {
			continue
		}
		delete(e.sessions, id)
		evicted++
	}
	remaining := len(e.sessions)
	e.mu.Unlock()

	if evicted > 0 {
		e.logger.Info("engine.janitor.evicted", "sessions", evicted, "remaining", remaining)
	}
	return evicted
}
