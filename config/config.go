// Package config loads the service configuration from a YAML or JSON5 file
// and environment variables.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chatreview/scoring"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Turn      TurnConfig      `yaml:"turn"`
	Tools     ToolsConfig     `yaml:"tools"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ModelConfig selects the model backend. Provider is "openai" for any
// OpenAI-compatible endpoint such as LM Studio, or "anthropic".
type ModelConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Name        string        `yaml:"name"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	MaxRetries  int           `yaml:"max_retries"`
	Timeout     time.Duration `yaml:"timeout"`
}

type TurnConfig struct {
	Timeout                 time.Duration `yaml:"timeout"`
	MaxToolCalls            int           `yaml:"max_tool_calls"`
	EventBuffer             int           `yaml:"event_buffer"`
	HistoryLimit            int           `yaml:"history_limit"`
	ScorePolicy             string        `yaml:"score_policy"`
	ScreenCandidateMessages bool          `yaml:"screen_candidate_messages"`
}

type ToolsConfig struct {
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	RAGTopK         int           `yaml:"rag_top_k"`
}

type SandboxConfig struct {
	CodeURL string        `yaml:"code_url"`
	SQLURL  string        `yaml:"sql_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebSearchConfig struct {
	Backend     string        `yaml:"backend"`
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	ResultCount int           `yaml:"result_count"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// StorageConfig selects the session archive. Driver is "memory" or "sqlite".
type StorageConfig struct {
	Driver    string        `yaml:"driver"`
	DSN       string        `yaml:"dsn"`
	Retention time.Duration `yaml:"retention"`
	Janitor   string        `yaml:"janitor"`
}

type CatalogConfig struct {
	SeedFile string `yaml:"seed_file"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used when no file is given. It talks to
// a local LM Studio server and keeps sessions in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:1234/v1/chat/completions",
			Name:        "local-model",
			APIKey:      "lm-studio",
			Temperature: 0.2,
			MaxTokens:   1024,
			MaxRetries:  2,
			Timeout:     60 * time.Second,
		},
		Turn: TurnConfig{
			Timeout:      120 * time.Second,
			MaxToolCalls: 4,
			EventBuffer:  64,
			HistoryLimit: 40,
			ScorePolicy:  string(scoring.PolicyAppend),
		},
		Tools: ToolsConfig{
			DispatchTimeout: 20 * time.Second,
			RAGTopK:         3,
		},
		Sandbox: SandboxConfig{
			CodeURL: "http://localhost:8001/run_code",
			SQLURL:  "http://localhost:8002/run_sql",
			Timeout: 30 * time.Second,
		},
		WebSearch: WebSearchConfig{
			Backend:     "duckduckgo",
			Timeout:     8 * time.Second,
			ResultCount: 5,
			CacheTTL:    10 * time.Minute,
		},
		Storage: StorageConfig{
			Driver:    "memory",
			Retention: 10 * time.Minute,
			Janitor:   "@every 1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "chatreview",
			SampleRatio: 1,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. Environment variables referenced as ${VAR} in the
// file are expanded before parsing. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Decode([]byte(os.ExpandEnv(string(data))), path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode layers a YAML or JSON5 document over c. The format is chosen by the
// extension of pathHint: .json and .json5 are JSON5, everything else YAML.
// Unknown keys are rejected.
func (c *Config) Decode(data []byte, pathHint string) error {
	raw, err := parseRawBytes(data, pathHint)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr is required")
	}
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		add("model.provider must be openai or anthropic, got %q", c.Model.Provider)
	}
	if c.Model.Provider == "openai" && strings.TrimSpace(c.Model.BaseURL) == "" {
		add("model.base_url is required for the openai provider")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add("model.temperature must be within [0, 2]")
	}
	if c.Model.Timeout <= 0 {
		add("model.timeout must be positive")
	}
	if c.Turn.Timeout <= 0 {
		add("turn.timeout must be positive")
	}
	if c.Turn.MaxToolCalls < 1 {
		add("turn.max_tool_calls must be at least 1")
	}
	if c.Turn.EventBuffer < 0 || c.Turn.HistoryLimit < 0 {
		add("turn.event_buffer and turn.history_limit must not be negative")
	}
	if _, err := scoring.ParsePolicy(c.Turn.ScorePolicy); err != nil {
		add("turn.score_policy: %v", err)
	}
	switch c.WebSearch.Backend {
	case "duckduckgo", "http":
	default:
		add("web_search.backend must be duckduckgo or http, got %q", c.WebSearch.Backend)
	}
	if c.WebSearch.Backend == "http" && c.WebSearch.URL == "" {
		add("web_search.url is required for the http backend")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn is required for the sqlite driver")
		}
	default:
		add("storage.driver must be memory or sqlite, got %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format must be json or text, got %q", c.Logging.Format)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		add("tracing.sample_ratio must be within [0, 1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
