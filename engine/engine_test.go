package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/artifact"
	"github.com/hupe1980/chatreview/catalog"
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/flow"
	"github.com/hupe1980/chatreview/internal/testutil"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/sandbox"
	"github.com/hupe1980/chatreview/scoring"
	"github.com/hupe1980/chatreview/session"
	"github.com/hupe1980/chatreview/websearch"
)

type fixture struct {
	eng      *Engine
	model    *model.ScriptedModel
	store    *session.InMemoryStore
	sandbox  *testutil.FakeSandbox
	searcher *testutil.FakeSearcher
}

func newFixture(t *testing.T, m *model.ScriptedModel, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		model:    m,
		store:    session.NewInMemoryStore(),
		sandbox:  &testutil.FakeSandbox{Result: sandbox.Result{Success: true, Stdout: "ok"}},
		searcher: &testutil.FakeSearcher{Results: []websearch.Result{{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"}}},
	}
	eng, err := New(m, append([]func(o *Options){func(o *Options) {
		o.Catalog = testutil.Catalog()
		o.Store = f.store
		o.Sandbox = f.sandbox
		o.Searcher = f.searcher
		o.JanitorSpec = ""
		o.TurnTimeout = 2 * time.Second
	}}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	f.eng = eng
	return f
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	snap, err := f.eng.CreateSession(context.Background(), "R", "S")
	require.NoError(t, err)
	return snap.ID
}

func (f *fixture) turn(t *testing.T, id string) []core.TokenEvent {
	t.Helper()
	stream, err := f.eng.RequestModelTurn(context.Background(), id)
	require.NoError(t, err)
	events, err := flow.Collect(stream)
	require.NotEmpty(t, events)
	if last := events[len(events)-1]; last.Type == core.EventError {
		assert.ErrorIs(t, err, last.Err)
	} else {
		require.NoError(t, err)
	}
	return events
}

func state(t *testing.T, eng *Engine, id string) core.SessionState {
	t.Helper()
	snap, err := eng.GetSession(context.Background(), id)
	require.NoError(t, err)
	return snap.State
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel())
	ctx := context.Background()

	snap, err := f.eng.CreateSession(ctx, "R", "S")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, core.StateCreated, snap.State)
	assert.Empty(t, snap.Messages)

	_, err = f.eng.CreateSession(ctx, "nope", "S")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.eng.CreateSession(ctx, "R", "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.eng.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateSessionRejectsForeignScenario(t *testing.T) {
	eng, err := New(model.NewScriptedModel(), func(o *Options) {
		o.Catalog = catalog.Default()
		o.JanitorSpec = ""
	})
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.CreateSession(context.Background(), "backend", "ds-junior-ml")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestModelTurn(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(model.Text("Hello, let us start.", 5)))
	id := f.session(t)

	_, err := f.eng.AppendCandidateMessage(context.Background(), id, "Hi", "T1")
	require.NoError(t, err)
	assert.Equal(t, core.StateActive, state(t, f.eng, id))

	events := f.turn(t, id)
	last := events[len(events)-1]
	assert.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, "Hello, let us start.", last.Content)

	var streamed strings.Builder
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, core.EventToken, ev.Type)
		streamed.WriteString(ev.Content)
	}
	assert.Equal(t, last.Content, streamed.String())

	assert.Equal(t, core.StateActive, state(t, f.eng, id))
	msgs, err := f.eng.Messages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, core.SenderModel, msgs[1].Sender)
	assert.Equal(t, "Hello, let us start.", msgs[1].Text)
	assert.Equal(t, "T1", msgs[1].TaskID)

	reqs := f.model.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "Test scenario")
	assert.Len(t, reqs[0].Tools, 3)
}

func TestSecondTurnRejectedWhileAwaiting(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(model.Round{Block: true}), func(o *Options) {
		o.TurnTimeout = 200 * time.Millisecond
	})
	id := f.session(t)
	ctx := context.Background()

	stream, err := f.eng.RequestModelTurn(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StateAwaitingModel, state(t, f.eng, id))

	_, err = f.eng.RequestModelTurn(ctx, id)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.eng.AppendCandidateMessage(ctx, id, "answer", "")
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.eng.CompleteSession(ctx, id)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	events, err := flow.Collect(stream)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.ErrorIs(t, last.Err, core.ErrTimeout)

	assert.Equal(t, core.StateActive, state(t, f.eng, id))
	msgs, err := f.eng.Messages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConcurrentTurnsOnlyOneWins(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(model.Round{Chunks: []string{"ok"}, Delay: 50 * time.Millisecond}))
	id := f.session(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		streams  []*flow.Stream
		rejected int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.eng.RequestModelTurn(context.Background(), id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, core.ErrInvalidState)
				rejected++
				return
			}
			streams = append(streams, s)
		}()
	}
	wg.Wait()
	require.Len(t, streams, 1)
	assert.Equal(t, 1, rejected)

	_, err := flow.Collect(streams[0])
	require.NoError(t, err)
	assert.Equal(t, core.StateActive, state(t, f.eng, id))
}

func TestAbandonedStreamReleasesSession(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(model.Round{Chunks: []string{"a", "b", "c"}, Delay: 20 * time.Millisecond}))
	id := f.session(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.eng.RequestModelTurn(ctx, id)
	require.NoError(t, err)
	cancel()
	stream.Close()

	<-stream.Done()
	assert.Eventually(t, func() bool {
		return state(t, f.eng, id) == core.StateActive && f.eng.InFlight() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestUnreadStreamReleasedAtTurnDeadline(t *testing.T) {
	chunks := make([]string, 300)
	for i := range chunks {
		chunks[i] = "x"
	}
	f := newFixture(t, model.NewScriptedModel(model.Round{Chunks: chunks, Block: true}), func(o *Options) {
		o.TurnTimeout = 300 * time.Millisecond
		o.EventBuffer = 8
	})
	id := f.session(t)

	_, err := f.eng.RequestModelTurn(context.Background(), id)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return state(t, f.eng, id) == core.StateActive && f.eng.InFlight() == 0
	}, 2*time.Second, 20*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = f.eng.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an unread turn")
	}
}

func TestNewFallsBackToDefaultLimits(t *testing.T) {
	m := model.NewScriptedModel(testutil.ToolRound("c1", "web_search", map[string]any{"query": "go"}))
	m.Repeat = true
	f := newFixture(t, m, func(o *Options) {
		o.MaxToolCalls = 0
		o.TurnTimeout = 0
		o.ModelTimeout = -time.Second
	})
	assert.Equal(t, defaultMaxToolCalls, f.eng.opts.MaxToolCalls)
	assert.Equal(t, defaultTurnTimeout, f.eng.opts.TurnTimeout)
	assert.Equal(t, defaultModelTimeout, f.eng.opts.ModelTimeout)

	id := f.session(t)
	events := f.turn(t, id)
	var calls int
	for _, ev := range events {
		if ev.Type == core.EventToolCall {
			calls++
		}
	}
	assert.Equal(t, defaultMaxToolCalls, calls)
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.ErrorIs(t, last.Err, core.ErrCallLimitExceeded)
}

func TestUpstreamFailureKeepsSessionResumable(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(
		model.Round{Chunks: []string{"partial"}, Err: core.Errorf("test", core.ErrUpstreamUnavailable, "connection reset")},
		model.Text("recovered", 0),
	))
	id := f.session(t)

	events := f.turn(t, id)
	assert.Equal(t, core.EventToken, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.ErrorIs(t, last.Err, core.ErrUpstreamUnavailable)

	msgs, err := f.eng.Messages(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	events = f.turn(t, id)
	assert.Equal(t, "recovered", events[len(events)-1].Content)
}

func TestRecordScoreValidatesAgainstTaskLimit(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel())
	id := f.session(t)
	ctx := context.Background()

	_, err := f.eng.RecordScore(ctx, id, "C1", 12, "too generous")
	assert.ErrorIs(t, err, core.ErrInvalidScore)
	scores, err := f.eng.Scores(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, scores)

	sc, err := f.eng.RecordScore(ctx, id, "C1", 10, "full marks")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sc.Awarded)
	assert.Equal(t, 10.0, sc.Max)
	assert.Equal(t, id, sc.SessionID)

	_, err = f.eng.RecordScore(ctx, id, "C1", -1, "")
	assert.ErrorIs(t, err, core.ErrInvalidScore)

	_, err = f.eng.RecordScore(ctx, id, "X9", 1, "")
	assert.ErrorIs(t, err, core.ErrInvalidScore)

	scores, err = f.eng.Scores(ctx, id)
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestScorePolicies(t *testing.T) {
	tests := []struct {
		name    string
		policy  scoring.Policy
		wantErr error
		want    int
	}{
		{name: "append", policy: scoring.PolicyAppend, want: 2},
		{name: "reject duplicate", policy: scoring.PolicyRejectDuplicate, wantErr: core.ErrInvalidScore, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.NewScriptedModel(), func(o *Options) { o.ScorePolicy = tt.policy })
			id := f.session(t)
			ctx := context.Background()

			_, err := f.eng.RecordScore(ctx, id, "T1", 2, "first")
			require.NoError(t, err)
			_, err = f.eng.RecordScore(ctx, id, "T1", 4, "second")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			scores, err := f.eng.Scores(ctx, id)
			require.NoError(t, err)
			assert.Len(t, scores, tt.want)

			sum, err := f.eng.Summary(ctx, id)
			require.NoError(t, err)
			if tt.wantErr == nil {
				assert.Equal(t, 4.0, sum.PerTask["T1"])
			} else {
				assert.Equal(t, 2.0, sum.PerTask["T1"])
			}
		})
	}
}

func TestToolCallCapEndsTurnWithError(t *testing.T) {
	m := model.NewScriptedModel(testutil.ToolRound("c1", "web_search", map[string]any{"query": "go"}))
	m.Repeat = true
	f := newFixture(t, m, func(o *Options) { o.MaxToolCalls = 2 })
	id := f.session(t)

	events := f.turn(t, id)
	var calls int
	for _, ev := range events {
		if ev.Type == core.EventToolCall {
			calls++
		}
	}
	assert.Equal(t, 2, calls)
	last := events[len(events)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.ErrorIs(t, last.Err, core.ErrCallLimitExceeded)
	assert.Equal(t, core.StateActive, state(t, f.eng, id))
}

func TestScoreToolFeedbackAndExchangeLog(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(
		testutil.ScoreRound("T1", 4, "solid answer"),
		model.Round{},
	))
	id := f.session(t)
	_, err := f.eng.AppendCandidateMessage(context.Background(), id, "Regularization limits variance.", "T1")
	require.NoError(t, err)

	events := f.turn(t, id)
	require.Equal(t, core.EventToolCall, events[0].Type)
	assert.Equal(t, "score_task", events[0].Name)
	last := events[len(events)-1]
	require.Equal(t, core.EventDone, last.Type)
	assert.True(t, strings.HasPrefix(last.Content, "Score saved: 4 point(s) for T1"), last.Content)
	assert.Contains(t, last.Content, "solid answer")

	msgs, err := f.eng.Messages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, core.SenderSystem, msgs[1].Sender)
	assert.True(t, strings.HasPrefix(msgs[1].Text, "tool score_task -> "), msgs[1].Text)
	assert.Contains(t, msgs[1].Text, `"status":"recorded"`)
	assert.Equal(t, core.SenderModel, msgs[2].Sender)
	assert.Equal(t, last.Content, msgs[2].Text)

	scores, err := f.eng.Scores(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 4.0, scores[0].Awarded)
}

func TestInvalidScoreToolCallIsReportedToModel(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(
		testutil.ScoreRound("C1", 12, "too much"),
		model.Text("Let me reconsider.", 0),
	))
	id := f.session(t)

	events := f.turn(t, id)
	last := events[len(events)-1]
	require.Equal(t, core.EventDone, last.Type)
	assert.Equal(t, "Let me reconsider.", last.Content)

	scores, err := f.eng.Scores(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, scores)

	reqs := f.model.Requests()
	require.Len(t, reqs, 2)
	var sawError bool
	for _, c := range reqs[1].Contents {
		for _, p := range c.Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok && fr.FunctionResponse.Error != "" {
				sawError = true
			}
		}
	}
	assert.True(t, sawError)
}

func TestScoringLastTaskCompletesAfterTurn(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(
		testutil.ScoreRound("SQL1", 8, "correct join"),
		model.Text("That concludes the interview.", 0),
	))
	id := f.session(t)
	ctx := context.Background()

	_, err := f.eng.RecordScore(ctx, id, "T1", 5, "")
	require.NoError(t, err)
	_, err = f.eng.RecordScore(ctx, id, "C1", 7, "")
	require.NoError(t, err)

	events := f.turn(t, id)
	assert.Equal(t, core.EventDone, events[len(events)-1].Type)
	assert.Equal(t, core.StateCompleted, state(t, f.eng, id))

	archived, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, archived.State)
	assert.NotNil(t, archived.Finished)
	assert.Equal(t, "That concludes the interview.", archived.Messages[len(archived.Messages)-1].Text)

	_, err = f.eng.AppendCandidateMessage(ctx, id, "one more thing", "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	_, err = f.eng.AppendSystemMessage(ctx, id, "feedback sent", "")
	assert.NoError(t, err)
}

func TestCompleteSessionArchivesAndReloads(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(), func(o *Options) { o.Retention = time.Minute })
	id := f.session(t)
	ctx := context.Background()

	snap, err := f.eng.CompleteSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, snap.State)
	require.NotNil(t, snap.Finished)

	_, err = f.eng.RequestModelTurn(ctx, id)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	assert.Equal(t, 0, f.eng.EvictArchived(time.Now()))
	assert.Equal(t, 1, f.eng.EvictArchived(time.Now().Add(2*time.Minute)))
	assert.Empty(t, f.eng.Sessions())

	reloaded, err := f.eng.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, reloaded.State)

	again, err := f.eng.CompleteSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, snap.Finished.Unix(), again.Finished.Unix())
}

func TestScreening(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "placeholder", text: "(correct answer)", want: WarningNoAnswer},
		{name: "russian placeholder", text: "Ответ правильный", want: WarningNoAnswer},
		{name: "code", text: "def fit(x):\n    return x", want: WarningPastedCode},
		{name: "sql", text: "SELECT id FROM users", want: WarningPastedCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.NewScriptedModel(), func(o *Options) { o.ScreenCandidateMessages = true })
			id := f.session(t)
			_, err := f.eng.AppendCandidateMessage(context.Background(), id, tt.text, "T1")
			require.NoError(t, err)

			events := f.turn(t, id)
			require.Len(t, events, 2)
			assert.Equal(t, core.EventToken, events[0].Type)
			assert.Equal(t, tt.want, events[0].Content)
			assert.Equal(t, core.EventDone, events[1].Type)
			assert.Equal(t, tt.want, events[1].Content)

			assert.Equal(t, 0, f.model.Calls())
			assert.Equal(t, core.StateActive, state(t, f.eng, id))
			msgs, err := f.eng.Messages(context.Background(), id)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, core.SenderSystem, msgs[1].Sender)
		})
	}
}

func TestScreen(t *testing.T) {
	assert.Equal(t, []string{FlagEmpty}, Screen("   "))
	assert.Empty(t, Screen("I would use L2 regularization from the start."))
	assert.Equal(t, []string{FlagCodeInChat}, Screen("import numpy as np"))
	assert.Equal(t, []string{FlagSQLInChat}, Screen("select name from t"))
	assert.Equal(t, []string{FlagPlaceholder}, Screen("(solution)"))
}

func TestSubmitCode(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel())
	id := f.session(t)
	ctx := context.Background()

	res, err := f.eng.SubmitCode(ctx, id, "C1", sandbox.CodeRequest{Code: "print(1)"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, f.sandbox.Code, 1)
	assert.Equal(t, "python", f.sandbox.Code[0].Language)
	assert.Equal(t, "logreg_basic", f.sandbox.Code[0].TestsID)

	msgs, err := f.eng.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, core.SenderSystem, msgs[0].Sender)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "Code execution result for C1: "))

	_, err = f.eng.SubmitCode(ctx, id, "T1", sandbox.CodeRequest{Code: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = f.eng.SubmitCode(ctx, id, "nope", sandbox.CodeRequest{Code: "x"})
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.eng.SubmitCode(ctx, id, "C1", sandbox.CodeRequest{})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	subs, err := f.eng.Submissions(ctx, id)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, artifact.KindCode, subs[0].Kind)
	assert.Equal(t, "C1", subs[0].TaskID)
	assert.Equal(t, "print(1)", subs[0].Source)
	assert.True(t, subs[0].Success)
}

func TestSubmitTransportFailureIsFailedResult(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel())
	f.sandbox.Err = core.Errorf("sandbox", core.ErrUpstreamUnavailable, "connection refused")
	id := f.session(t)

	res, err := f.eng.SubmitSQL(context.Background(), id, "SQL1", sandbox.SQLRequest{Query: "SELECT 1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
	require.Len(t, f.sandbox.Query, 1)
	assert.Equal(t, "ecommerce_basic", f.sandbox.Query[0].SQLScenarioID)

	msgs, err := f.eng.Messages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "SQL execution result for SQL1: "))

	_, err = f.eng.CompleteSession(context.Background(), id)
	require.NoError(t, err)
	_, err = f.eng.SubmitSQL(context.Background(), id, "SQL1", sandbox.SQLRequest{Query: "SELECT 1"})
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestHooks(t *testing.T) {
	var (
		mu       sync.Mutex
		outcomes []string
		scored   []string
	)
	budget := 1
	f := newFixture(t, model.NewScriptedModel(testutil.ScoreRound("T1", 3, "ok"), model.Text("next", 0)),
		func(o *Options) {
			o.Hooks = []Hook{
				NewTurnGuard(func(string) error {
					mu.Lock()
					defer mu.Unlock()
					if budget == 0 {
						return errors.New("turn budget exhausted")
					}
					budget--
					return nil
				}),
				NewFunctionHook(HookAfterTurn, func(_ context.Context, hc *HookContext) error {
					mu.Lock()
					defer mu.Unlock()
					outcomes = append(outcomes, hc.Outcome)
					return nil
				}),
				NewFunctionHook(HookOnScore, func(_ context.Context, hc *HookContext) error {
					mu.Lock()
					defer mu.Unlock()
					scored = append(scored, hc.Score.TaskID)
					return nil
				}),
			}
		})
	id := f.session(t)

	f.turn(t, id)

	_, err := f.eng.RequestModelTurn(context.Background(), id)
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, core.StateActive, state(t, f.eng, id))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{OutcomeDone, OutcomeAborted}, outcomes)
	assert.Equal(t, []string{"T1"}, scored)
}

func TestWebSearchAndPing(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel(model.Text("OK", 0)))
	id := f.session(t)
	ctx := context.Background()

	results, err := f.eng.WebSearch(ctx, id, "golang", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"golang"}, f.searcher.Queries)

	_, err = f.eng.WebSearch(ctx, id, " ", 3)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = f.eng.WebSearch(ctx, "missing", "golang", 3)
	assert.ErrorIs(t, err, core.ErrNotFound)

	info, err := f.eng.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scripted", info.Provider)
}

func TestCloseArchivesLiveSessions(t *testing.T) {
	f := newFixture(t, model.NewScriptedModel())
	id := f.session(t)
	_, err := f.eng.AppendCandidateMessage(context.Background(), id, "hello", "")
	require.NoError(t, err)

	require.NoError(t, f.eng.Close())
	snap, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 1)

	_, err = f.eng.CreateSession(context.Background(), "R", "S")
	assert.ErrorIs(t, err, core.ErrInvalidState)
}
