package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/flow"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/tool"
)

// Turn outcomes reported to AfterTurn hooks.
const (
	OutcomeDone     = "done"
	OutcomeError    = "error"
	OutcomeScreened = "screened"
	OutcomeAborted  = "aborted"
)

// RequestModelTurn starts a model turn and returns its event stream. The
// session is awaiting_model until the turn's terminal event; a second call
// in the meantime fails with core.ErrInvalidState.
//
// The turn is bounded by Options.TurnTimeout and is independent of ctx:
// abandoning the stream stops delivery, but the model call still runs to
// its end and releases the session.
func (e *Engine) RequestModelTurn(ctx context.Context, id string) (*flow.Stream, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	scenario, err := e.opts.Catalog.Scenario(sess.ScenarioID)
	if err != nil {
		return nil, err
	}
	role, err := e.opts.Catalog.Role(sess.RoleID)
	if err != nil {
		return nil, err
	}

	turnID := core.NewID()
	if err := sess.BeginTurn(turnID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sess.EndTurn(turnID)
		return nil, errClosed("engine.RequestModelTurn")
	}
	e.turns[turnID] = inflight{sess: sess, start: time.Now()}
	e.wg.Add(1)
	e.mu.Unlock()

	if err := e.hooks.Execute(ctx, &HookContext{
		Type:       HookBeforeTurn,
		SessionID:  sess.ID,
		ScenarioID: scenario.ID,
		TurnID:     turnID,
	}); err != nil {
		e.release(turnID, OutcomeAborted, flow.TurnResult{Err: err})
		e.wg.Done()
		return nil, core.E("engine.RequestModelTurn", core.ErrInvalidState, err)
	}

	messages := sess.Messages()
	if e.opts.ScreenCandidateMessages {
		if warning, flags := screenLatest(messages); warning != "" {
			return e.rejectTurn(sess, turnID, warning, flags), nil
		}
	}

	in := flow.TurnInput{
		Role:          role,
		Scenario:      scenario,
		Messages:      messages,
		Scores:        sess.Scores(),
		CurrentTaskID: sess.CurrentTaskID(),
		RAGAvailable:  e.ragAvailable(scenario.RAGCorpusID),
	}

	turnCtx, cancel := context.WithTimeout(e.baseCtx, e.opts.TurnTimeout)
	tc := core.NewTurnContext(turnCtx, sess.ID, turnID, scenario, e.opts.MaxToolCalls, e.turnLogger(sess.ID, turnID))

	e.logger.Info("engine.turn.start", "session_id", sess.ID, "turn_id", turnID, "messages", len(messages))
	stream := e.consumer.Run(ctx, tc, in)

	go func() {
		defer e.wg.Done()
		<-stream.Done()
		cancel()
		// OnFinish normally released the turn already.
		e.release(turnID, OutcomeAborted, flow.TurnResult{})
	}()

	return stream, nil
}

// rejectTurn answers a screened candidate message without calling the model.
func (e *Engine) rejectTurn(sess *core.Session, turnID, warning string, flags []string) *flow.Stream {
	if _, err := sess.AppendMessage(core.NewMessage(sess.ID, core.SenderSystem, warning, sess.CurrentTaskID())); err != nil {
		e.logger.Warn("engine.turn.screen_append_failed", "session_id", sess.ID, "error", err)
	}
	e.logger.Info("engine.turn.screened", "session_id", sess.ID, "turn_id", turnID, "flags", strings.Join(flags, ","))
	e.release(turnID, OutcomeScreened, flow.TurnResult{Answer: warning})
	e.wg.Done()
	return flow.NewStaticStream(core.TokenChunk(warning), core.DoneEvent(warning))
}

// onToolResult logs every tool exchange into the dialogue as it happens.
func (e *Engine) onToolResult(turn *core.TurnContext, call core.ToolCall, res tool.Result) {
	sess := e.live(turn.SessionID)
	if sess == nil {
		return
	}
	text := fmt.Sprintf("tool %s -> %s", call.Name, res.Content)
	if _, err := sess.AppendMessage(core.NewMessage(sess.ID, core.SenderSystem, text, sess.CurrentTaskID())); err != nil {
		e.logger.Warn("engine.tool.append_failed", "session_id", sess.ID, "tool", call.Name, "error", err)
	}
	e.fire(turn.Context, &HookContext{
		Type:       HookAfterTool,
		SessionID:  sess.ID,
		ScenarioID: sess.ScenarioID,
		TurnID:     turn.TurnID,
		Call:       &call,
		Result:     &res,
	})
}

// onFinish persists the final answer of a turn and releases the session.
// Failed turns persist nothing beyond what was appended during the turn.
func (e *Engine) onFinish(turn *core.TurnContext, res flow.TurnResult) string {
	content := res.Answer
	if res.Err == nil && strings.TrimSpace(content) == "" {
		if fb, ok := scoreFeedback(res.Results); ok {
			content = fb
		}
	}

	if sess := e.live(turn.SessionID); sess != nil && res.Err == nil && strings.TrimSpace(content) != "" {
		if _, err := sess.AppendMessage(core.NewMessage(sess.ID, core.SenderModel, content, sess.CurrentTaskID())); err != nil {
			e.logger.Warn("engine.turn.append_failed", "session_id", sess.ID, "error", err)
		}
	}

	outcome := OutcomeDone
	if res.Err != nil {
		outcome = OutcomeError
	}
	e.release(turn.TurnID, outcome, res)
	return content
}

// release ends a turn exactly once: the session leaves awaiting_model, the
// AfterTurn hook fires and a completion deferred during the turn is
// archived.
func (e *Engine) release(turnID, outcome string, res flow.TurnResult) {
	e.mu.Lock()
	t, ok := e.turns[turnID]
	delete(e.turns, turnID)
	e.mu.Unlock()
	if !ok {
		return
	}

	state := t.sess.EndTurn(turnID)
	dur := time.Since(t.start)
	e.logger.Info("engine.turn.end", "session_id", t.sess.ID, "turn_id", turnID, "outcome", outcome,
		"rounds", res.Rounds, "tool_calls", len(res.ToolCalls), "duration_ms", dur.Milliseconds())

	e.fire(context.Background(), &HookContext{
		Type:       HookAfterTurn,
		SessionID:  t.sess.ID,
		ScenarioID: t.sess.ScenarioID,
		TurnID:     turnID,
		Outcome:    outcome,
		Rounds:     res.Rounds,
		ToolCalls:  len(res.ToolCalls),
		Duration:   dur,
		Err:        res.Err,
	})

	if state == core.StateCompleted {
		e.finalize(t.sess)
	}
}

// InFlight reports the number of model turns currently running.
func (e *Engine) InFlight() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.turns)
}

func (e *Engine) ragAvailable(corpusID string) bool {
	if corpusID == "" {
		return false
	}
	docs, err := e.opts.Knowledge.Documents(corpusID)
	return err == nil && len(docs) > 0
}

func (e *Engine) turnLogger(sessionID, turnID string) logging.Logger {
	if sl, ok := e.opts.Logger.(*logging.StructuredLogger); ok {
		return sl.WithComponent("flow").WithSession(sessionID, turnID)
	}
	return e.opts.Logger
}

// scoreFeedback builds the answer of a turn that recorded a score but ended
// without any text.
func scoreFeedback(results []tool.Result) (string, bool) {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if r.Name != tool.ScoreTaskName || r.IsError {
			continue
		}
		var recorded struct {
			TaskID    string  `json:"task_id"`
			Awarded   float64 `json:"awarded"`
			Rationale string  `json:"rationale"`
		}
		if err := json.Unmarshal([]byte(r.Content), &recorded); err != nil || recorded.TaskID == "" {
			continue
		}
		comment := recorded.Rationale
		if comment == "" {
			comment = "-"
		}
		return fmt.Sprintf("Score saved: %g point(s) for %s. Comment: %s. Press \"Next\" to continue.",
			recorded.Awarded, recorded.TaskID, comment), true
	}
	return "", false
}
