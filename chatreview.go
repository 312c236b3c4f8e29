// Package chatreview assembles an interview service from a config.Config:
// the language model, the session archive, the catalog, the retrieval
// index, the sandbox and web search clients, metrics and the HTTP API.
//
// Most applications create an App with New, serve it with Serve and release
// it with Close:
//
//	cfg, _ := config.Load("chatreview.yaml")
//	app, err := chatreview.New(cfg)
//	if err != nil { ... }
//	defer app.Close()
//	_ = app.Serve(ctx)
//
// Every collaborator can be overridden through Options, which is how tests
// and examples plug in a scripted model and fake sandboxes.
package chatreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/chatreview/api"
	"github.com/hupe1980/chatreview/catalog"
	"github.com/hupe1980/chatreview/config"
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/engine"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/metrics"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/model/anthropic"
	"github.com/hupe1980/chatreview/model/openai"
	"github.com/hupe1980/chatreview/rag"
	"github.com/hupe1980/chatreview/sandbox"
	"github.com/hupe1980/chatreview/scoring"
	"github.com/hupe1980/chatreview/session"
	"github.com/hupe1980/chatreview/session/sqlite"
	"github.com/hupe1980/chatreview/websearch"
)

// Version is reported by the CLI and in trace resources.
const Version = "0.1.0"

// Options override collaborators that New would otherwise build from the
// configuration.
type Options struct {
	Model    model.Model
	Store    core.SessionStore
	Catalog  *catalog.Catalog
	Index    *rag.Index
	Sandbox  sandbox.Runner
	Searcher websearch.Searcher
	Logger   logging.Logger

	// Engine is applied after the configuration-derived engine options.
	Engine []func(o *engine.Options)
}

// App is a wired interview service.
type App struct {
	cfg     *config.Config
	logger  logging.Logger
	engine  *engine.Engine
	index   *rag.Index
	metrics *metrics.Metrics
	server  *api.Server
	closers []func() error
}

// New builds an App from cfg. A nil cfg means config.Default().
func New(cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	app := &App{cfg: cfg, logger: opts.Logger}
	if app.logger == nil {
		app.logger = NewLogger(cfg.Logging)
	}

	m := opts.Model
	if m == nil {
		var err error
		if m, err = NewModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		s, closer, err := NewStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		store = s
		if closer != nil {
			app.closers = append(app.closers, closer)
		}
	}

	cat := opts.Catalog
	if cat == nil {
		var err error
		if cat, err = catalog.Load(cfg.Catalog.SeedFile); err != nil {
			return nil, err
		}
	}

	app.index = opts.Index
	if app.index == nil {
		app.index = rag.NewIndex()
	}

	runner := opts.Sandbox
	if runner == nil {
		runner = sandbox.NewClient(func(o *sandbox.Options) {
			o.CodeURL = cfg.Sandbox.CodeURL
			o.SQLURL = cfg.Sandbox.SQLURL
			o.Timeout = cfg.Sandbox.Timeout
			o.Logger = app.logger
		})
	}

	searcher := opts.Searcher
	if searcher == nil {
		searcher = websearch.NewClient(func(o *websearch.Options) {
			o.Backend = websearch.Backend(cfg.WebSearch.Backend)
			o.URL = cfg.WebSearch.URL
			o.Timeout = cfg.WebSearch.Timeout
			o.DefaultResultCount = cfg.WebSearch.ResultCount
			o.CacheTTL = cfg.WebSearch.CacheTTL
			o.Logger = app.logger
		})
	}

	policy, err := scoring.ParsePolicy(cfg.Turn.ScorePolicy)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		app.metrics = metrics.New()
	}

	engineOpts := []func(o *engine.Options){func(o *engine.Options) {
		o.Catalog = cat
		o.Store = store
		o.Knowledge = app.index
		o.Searcher = searcher
		o.Sandbox = runner
		o.Logger = app.logger
		o.TurnTimeout = cfg.Turn.Timeout
		o.ModelTimeout = cfg.Model.Timeout
		o.MaxToolCalls = cfg.Turn.MaxToolCalls
		o.HistoryLimit = cfg.Turn.HistoryLimit
		o.EventBuffer = cfg.Turn.EventBuffer
		o.ScorePolicy = policy
		o.ScreenCandidateMessages = cfg.Turn.ScreenCandidateMessages
		o.DispatchTimeout = cfg.Tools.DispatchTimeout
		o.RAGTopK = cfg.Tools.RAGTopK
		o.JanitorSpec = cfg.Storage.Janitor
		o.Retention = cfg.Storage.Retention
		if app.metrics != nil {
			o.Hooks = append(o.Hooks, app.metrics.Hooks()...)
			o.ToolObserver = app.metrics.ToolObserver()
		}
	}}
	eng, err := engine.New(m, append(engineOpts, opts.Engine...)...)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	app.engine = eng

	var metricsHandler http.Handler
	if app.metrics != nil {
		app.metrics.TrackInFlight(eng.InFlight)
		metricsHandler = app.metrics.Handler()
	}
	app.server = api.New(eng, app.index, func(o *api.Options) {
		o.AllowedOrigins = cfg.Server.AllowedOrigins
		o.Logger = app.logger
		o.Metrics = metricsHandler
		o.MetricsPath = cfg.Metrics.Path
	})

	return app, nil
}

// Engine returns the session orchestrator.
func (a *App) Engine() *engine.Engine { return a.engine }

// Index returns the retrieval index backing rag_search.
func (a *App) Index() *rag.Index { return a.index }

// Server returns the HTTP API.
func (a *App) Server() *api.Server { return a.server }

// Logger returns the application logger.
func (a *App) Logger() logging.Logger { return a.logger }

// Serve runs the HTTP API on the configured address until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	return a.server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// Close stops the engine, archives live sessions and closes the store.
func (a *App) Close() error {
	err := a.engine.Close()
	return errors.Join(err, a.closeAll())
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the structured logger described by cfg. Output goes to
// stderr.
func NewLogger(cfg config.LoggingConfig) *logging.StructuredLogger {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLevel(cfg.Level)
	if cfg.Format != "" {
		lc.Format = cfg.Format
	}
	lc.AddSource = cfg.AddSource
	lc.Output = os.Stderr
	return logging.NewLogger(lc)
}

// NewModel builds the model adapter selected by cfg.Provider.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.BaseURL = cfg.BaseURL
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.MaxRetries = cfg.MaxRetries
			if cfg.APIKey != "" {
				o.APIKey = cfg.APIKey
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
			o.Temperature = cfg.Temperature
			o.MaxRetries = cfg.MaxRetries
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

// NewStore opens the session archive selected by cfg.Driver. The returned
// closer is nil for stores without resources.
func NewStore(cfg config.StorageConfig) (core.SessionStore, func() error, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return session.NewInMemoryStore(), nil, nil
	case "sqlite":
		s, err := sqlite.New(sqlite.Config{Path: cfg.DSN})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
