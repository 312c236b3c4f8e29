// Package core provides the foundational domain types shared by the
// interview orchestrator:
//
//   - Sessions (lifecycle state plus append-only messages and scores)
//   - Catalog data (roles, scenarios, tasks)
//   - Model content (role based parts, function calls and responses)
//   - Token events streamed to clients during a model turn
//   - Turn and tool contexts handed to tool implementations
//   - The error taxonomy every operation reports through
//
// Implementation concerns (persistence, transport, model providers) live in
// other packages behind the small interfaces declared here.
package core
