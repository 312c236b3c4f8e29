package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/engine"
)

func TestHooksFeedCollectors(t *testing.T) {
	m := New()
	hooks := engine.NewHookManager()
	for _, h := range m.Hooks() {
		hooks.Register(h)
	}
	ctx := context.Background()

	require.NoError(t, hooks.Execute(ctx, &engine.HookContext{Type: engine.HookOnSessionCreated}))
	require.NoError(t, hooks.Execute(ctx, &engine.HookContext{Type: engine.HookAfterTurn, Outcome: engine.OutcomeDone, Duration: time.Second}))
	require.NoError(t, hooks.Execute(ctx, &engine.HookContext{Type: engine.HookAfterTurn, Outcome: engine.OutcomeError}))
	sc := core.Score{TaskID: "T1", Awarded: 4, Max: 5}
	require.NoError(t, hooks.Execute(ctx, &engine.HookContext{Type: engine.HookOnScore, Score: &sc}))
	require.NoError(t, hooks.Execute(ctx, &engine.HookContext{Type: engine.HookOnSessionCompleted}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(engine.OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(engine.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoresTotal))
}

func TestObserveTool(t *testing.T) {
	m := New()
	m.ObserveTool("rag_search", 10*time.Millisecond, nil)
	m.ToolObserver()("rag_search", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("rag_search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("rag_search", "error")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.TrackInFlight(func() int { return 2 })
	m.SessionsCreated.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "chatreview_sessions_created_total 1")
	assert.Contains(t, body, "chatreview_turns_active 2")
}
