// Package engine implements the session orchestrator of an interview.
//
// The Engine owns every live session and serializes the operations that
// mutate it. It bridges transport operations (create a session, append a
// candidate answer, request a model turn, submit code) with the streaming
// consumer in package flow and the tool dispatcher in package tool.
//
// # Session lifecycle
//
//	created ──append candidate──▶ active ──RequestModelTurn──▶ awaiting_model
//	                                 ▲                               │
//	                                 └────── done / error event ─────┘
//	active ──CompleteSession / last task scored──▶ completed
//
// At most one model turn is in flight per session. A second
// RequestModelTurn while awaiting_model fails with core.ErrInvalidState.
// Every turn runs under Options.TurnTimeout on a context owned by the
// engine, so a reader that disconnects never leaves the session stuck.
//
// # Tools
//
// Each turn offers rag_search, web_search and score_task. score_task calls
// back into Engine.RecordScore, which validates points against the task
// limit and applies the configured scoring.Policy. Every dispatched call is
// logged into the dialogue as a system message.
//
// # Hooks
//
// Hooks observe the lifecycle without changing core logic:
//
//	eng.Hooks().Register(engine.NewFunctionHook(engine.HookOnScore,
//	    func(ctx context.Context, hc *engine.HookContext) error {
//	        log.Printf("scored %s", hc.Score)
//	        return nil
//	    }))
//
// Only BeforeTurn hooks can veto an operation.
//
// # Archive
//
// Completed sessions are written to the configured core.SessionStore. A
// cron janitor evicts them from memory after Options.Retention; later reads
// reload them from the store.
package engine
