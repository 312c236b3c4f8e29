package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatreview"
	"github.com/hupe1980/chatreview/config"
	"github.com/hupe1980/chatreview/internal/testutil"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/sandbox"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"serve", "ping", "search", "chat", "ingest"} {
		assert.True(t, names[name], "missing subcommand %q", name)
	}
}

func newTestServer(t *testing.T, m *model.ScriptedModel) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Janitor = ""
	app, err := chatreview.New(cfg, func(o *chatreview.Options) {
		o.Model = m
		o.Catalog = testutil.Catalog()
		o.Sandbox = &testutil.FakeSandbox{Result: sandbox.Result{Success: true}}
		o.Searcher = &testutil.FakeSearcher{}
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	srv := httptest.NewServer(app.Server().Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return srv
}

func TestChatSession(t *testing.T) {
	m := model.NewScriptedModel(
		model.Text("Welcome! What is overfitting?", 2),
		testutil.ScoreRound("T1", 5, "complete"),
		model.Text("Great answer.", 1),
	)
	srv := newTestServer(t, m)

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("The model memorizes noise in the training data.\n/quit\n"))
	cmd.SetArgs([]string{"chat", "--server", srv.URL, "--role", "R", "--scenario", "S"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "Welcome! What is overfitting?")
	assert.Contains(t, text, "Great answer.")
	assert.Contains(t, text, "score: 5 / 23")
}

func TestIngestCreatesCorpus(t *testing.T) {
	srv := newTestServer(t, model.NewScriptedModel())

	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("Gradient boosting fits trees on residuals."), 0o600))

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ingest", "--server", srv.URL, "--corpus", "ml", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	resp, err := http.Get(srv.URL + "/rag/corpora/ml")
	require.NoError(t, err)
	defer resp.Body.Close()
	var corpus map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&corpus))
	assert.Equal(t, 1.0, corpus["document_count"])
}
