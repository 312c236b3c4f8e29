// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer StructuredLogger with contextual
// helpers (component, session, turn) and domain specific helpers for tool
// dispatch, model rounds and whole turns.
package logging
