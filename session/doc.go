// Package session houses concrete implementations of core.SessionStore.
// The interface itself lives in core so the engine does not depend on any
// concrete storage. Additional backends live in sub-packages (see
// session/sqlite); only the wiring layer decides which one to instantiate.
package session
