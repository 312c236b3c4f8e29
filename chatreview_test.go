package chatreview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview/config"
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/internal/testutil"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/model/anthropic"
	"github.com/hupe1980/chatreview/model/openai"
	"github.com/hupe1980/chatreview/sandbox"
)

func TestNewWiresScriptedModel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Janitor = ""

	app, err := New(cfg, func(o *Options) {
		o.Model = model.NewScriptedModel(model.Text("Hello, let's start.", 2))
		o.Catalog = testutil.Catalog()
		o.Sandbox = &testutil.FakeSandbox{Result: sandbox.Result{Success: true}}
		o.Searcher = &testutil.FakeSearcher{}
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	ctx := context.Background()
	snap, err := app.Engine().CreateSession(ctx, "R", "S")
	require.NoError(t, err)

	stream, err := app.Engine().RequestModelTurn(ctx, snap.ID)
	require.NoError(t, err)
	var last core.TokenEvent
	for stream.Next() {
		last = stream.Current()
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, core.EventDone, last.Type)

	srv := httptest.NewServer(app.Server().Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatreview_sessions_created_total"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Turn.MaxToolCalls = -1
	_, err := New(cfg, func(o *Options) { o.Model = model.NewScriptedModel() })
	require.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: "openai", BaseURL: "http://localhost:1234/v1", Name: "qwen"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Model{}, m)

	m, err = NewModel(config.ModelConfig{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &anthropic.Model{}, m)

	_, err = NewModel(config.ModelConfig{Provider: "gemini"})
	require.Error(t, err)
}

func TestNewStore(t *testing.T) {
	s, closer, err := NewStore(config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Nil(t, closer)

	s, closer, err = NewStore(config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	require.NotNil(t, closer)
	t.Cleanup(func() { _ = closer() })

	sess := core.NewSession("s1", "R", "S")
	require.NoError(t, s.Save(context.Background(), sess.Snapshot()))
	got, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "S", got.ScenarioID)

	_, _, err = NewStore(config.StorageConfig{Driver: "postgres"})
	require.Error(t, err)
}
