package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/tool"
)

// HookType defines the lifecycle points where hooks are executed.
//
// Hooks provide a way to observe and guard the engine's operations without
// modifying core logic:
//   - BeforeTurn: before a model turn starts; an error rejects the turn
//   - AfterTurn: after a turn finished (done or error)
//   - AfterTool: after every tool dispatch of a turn
//   - OnScore: after a score was recorded
//   - OnSessionCreated / OnSessionCompleted: session lifecycle
type HookType string

const (
	// HookBeforeTurn is triggered after the session entered awaiting_model
	// and before the model is called. Returning an error aborts the turn.
	HookBeforeTurn HookType = "before_turn"

	// HookAfterTurn is triggered once the turn's terminal event is known.
	HookAfterTurn HookType = "after_turn"

	// HookAfterTool is triggered after a tool call was dispatched.
	HookAfterTool HookType = "after_tool"

	// HookOnScore is triggered after a score was appended to a session.
	HookOnScore HookType = "on_score"

	// HookOnSessionCreated is triggered after a session was created.
	HookOnSessionCreated HookType = "on_session_created"

	// HookOnSessionCompleted is triggered when a session reaches completed.
	HookOnSessionCompleted HookType = "on_session_completed"
)

// HookContext carries the information available at a lifecycle point.
// Fields not related to the hook type are left zero.
type HookContext struct {
	Type       HookType
	SessionID  string
	ScenarioID string
	TurnID     string

	// Outcome is "done", "error" or "screened" for AfterTurn.
	Outcome   string
	Rounds    int
	ToolCalls int
	Duration  time.Duration
	Err       error

	// Call and Result are set for AfterTool.
	Call   *core.ToolCall
	Result *tool.Result

	// Score is set for OnScore.
	Score *core.Score

	// Metadata provides extensible storage for custom hook data.
	Metadata map[string]any
}

// Hook is a lifecycle observer. Hooks run synchronously on the goroutine of
// the operation that triggers them, so they should be fast.
type Hook interface {
	// Type returns the hook type this implementation handles.
	Type() HookType

	// Execute performs the hook logic. Only BeforeTurn errors change the
	// outcome of an operation; other errors are logged.
	Execute(ctx context.Context, hc *HookContext) error
}

// FunctionHook wraps a function as a Hook.
//
//	h := NewFunctionHook(HookOnScore, func(ctx context.Context, hc *HookContext) error {
//	    log.Printf("scored %s", hc.Score)
//	    return nil
//	})
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hc *HookContext) error
}

// NewFunctionHook creates a new function-based hook.
func NewFunctionHook(hookType HookType, fn func(ctx context.Context, hc *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: hookType, fn: fn}
}

// Type returns the hook type this function handles.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hc *HookContext) error {
	return h.fn(ctx, hc)
}

// HookManager is a registry of hooks by type. Hooks run in registration
// order; the first error stops execution. It is safe for concurrent use.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[HookType][]Hook
}

// NewHookManager creates an empty hook manager.
func NewHookManager() *HookManager {
	return &HookManager{hooks: make(map[HookType][]Hook)}
}

// Register adds a hook for its type.
func (m *HookManager) Register(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[h.Type()] = append(m.hooks[h.Type()], h)
}

// Execute runs all hooks registered for hc.Type.
func (m *HookManager) Execute(ctx context.Context, hc *HookContext) error {
	m.mu.RLock()
	hooks := append([]Hook(nil), m.hooks[hc.Type]...)
	m.mu.RUnlock()

	for _, h := range hooks {
		if err := h.Execute(ctx, hc); err != nil {
			return fmt.Errorf("%s hook: %w", hc.Type, err)
		}
	}
	return nil
}

// LoggingHook forwards lifecycle events to a formatting function.
//
//	h := NewLoggingHook(HookAfterTurn, func(msg string) { log.Print(msg) })
type LoggingHook struct {
	hookType HookType
	logger   func(message string)
}

// NewLoggingHook creates a new logging hook.
func NewLoggingHook(hookType HookType, logger func(message string)) *LoggingHook {
	return &LoggingHook{hookType: hookType, logger: logger}
}

// Type returns the hook type this logger handles.
func (h *LoggingHook) Type() HookType { return h.hookType }

// Execute logs the hook context.
func (h *LoggingHook) Execute(_ context.Context, hc *HookContext) error {
	if h.logger == nil {
		return nil
	}
	msg := fmt.Sprintf("[%s] session=%s turn=%s", hc.Type, hc.SessionID, hc.TurnID)
	switch {
	case hc.Call != nil:
		msg += fmt.Sprintf(" tool=%s", hc.Call.Name)
	case hc.Score != nil:
		msg += fmt.Sprintf(" score=%s", hc.Score)
	case hc.Outcome != "":
		msg += fmt.Sprintf(" outcome=%s", hc.Outcome)
	}
	h.logger(msg)
	return nil
}

// TurnGuard rejects turns the guard function returns an error for, e.g. to
// enforce a per-session turn budget.
type TurnGuard struct {
	guard func(sessionID string) error
}

// NewTurnGuard creates a BeforeTurn hook from guard.
func NewTurnGuard(guard func(sessionID string) error) *TurnGuard {
	return &TurnGuard{guard: guard}
}

// Type returns HookBeforeTurn.
func (g *TurnGuard) Type() HookType { return HookBeforeTurn }

// Execute applies the guard.
func (g *TurnGuard) Execute(_ context.Context, hc *HookContext) error {
	if g.guard == nil {
		return nil
	}
	return g.guard(hc.SessionID)
}
