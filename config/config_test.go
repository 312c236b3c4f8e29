package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Turn.MaxToolCalls)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_MODEL_NAME", "qwen2.5-7b")
	path := filepath.Join(t.TempDir(), "chatreview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  name: ${TEST_MODEL_NAME}
  temperature: 0.5
turn:
  timeout: 45s
  score_policy: reject_duplicate
storage:
  driver: sqlite
  dsn: sessions.db
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-7b", cfg.Model.Name)
	assert.InDelta(t, 0.5, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Turn.Timeout)
	assert.Equal(t, "reject_duplicate", cfg.Turn.ScorePolicy)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	// untouched defaults survive
	assert.Equal(t, 4, cfg.Turn.MaxToolCalls)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatreview.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // local development
  server: {addr: ":9000", allowed_origins: ["http://localhost:3000"]},
  turn: {max_tool_calls: 6,},
}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 6, cfg.Turn.MaxToolCalls)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("turn:\n  max_tool_call: 3\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		"LM_STUDIO_URL":              "http://lm:1234/v1/chat/completions",
		"LM_MODEL":                   "mistral",
		"CHATREVIEW_MODEL":           "llama",
		"SANDBOX_CODE_URL":           "http://code/run",
		"SANDBOX_SQL_URL":            "http://sql/run",
		"WEB_SEARCH_URL":             "http://search/q",
		"ALLOW_ORIGINS":              "http://a, http://b",
		"DATABASE_URL":               "sqlite:///./app.db",
		"CHATREVIEW_MAX_TOOL_CALLS":  "7",
		"CHATREVIEW_SCREEN_MESSAGES": "true",
	}))

	assert.Equal(t, "http://lm:1234/v1/chat/completions", cfg.Model.BaseURL)
	assert.Equal(t, "llama", cfg.Model.Name)
	assert.Equal(t, "http://code/run", cfg.Sandbox.CodeURL)
	assert.Equal(t, "http://sql/run", cfg.Sandbox.SQLURL)
	assert.Equal(t, "http", cfg.WebSearch.Backend)
	assert.Equal(t, "http://search/q", cfg.WebSearch.URL)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "./app.db", cfg.Storage.DSN)
	assert.Equal(t, 7, cfg.Turn.MaxToolCalls)
	assert.True(t, cfg.Turn.ScreenCandidateMessages)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"provider", func(c *Config) { c.Model.Provider = "gemini" }},
		{"tool cap", func(c *Config) { c.Turn.MaxToolCalls = 0 }},
		{"model timeout", func(c *Config) { c.Model.Timeout = 0 }},
		{"policy", func(c *Config) { c.Turn.ScorePolicy = "overwrite" }},
		{"sqlite dsn", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"http search url", func(c *Config) { c.WebSearch.Backend = "http" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
