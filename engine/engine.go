package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/chatreview/artifact"
	"github.com/hupe1980/chatreview/catalog"
	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/flow"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/rag"
	"github.com/hupe1980/chatreview/sandbox"
	"github.com/hupe1980/chatreview/scoring"
	"github.com/hupe1980/chatreview/session"
	"github.com/hupe1980/chatreview/tool"
	"github.com/hupe1980/chatreview/websearch"
)

// Knowledge is the retrieval collaborator of the engine. It answers
// rag_search calls and tells the prompt whether a scenario corpus has any
// material at all.
type Knowledge interface {
	core.Retriever
	Documents(corpusID string) ([]rag.Document, error)
}

// Options configures an Engine using the functional options pattern.
// Every collaborator has an in-process default so an engine can be built
// with nothing but a model.
//
//	eng, err := engine.New(m, func(o *engine.Options) {
//	    o.Store = sqliteStore
//	    o.MaxToolCalls = 6
//	})
type Options struct {
	// Catalog provides roles, scenarios and SQL scenarios. Defaults to the
	// built-in demo catalog.
	Catalog core.Catalog

	// Store archives completed sessions. Defaults to an in-memory store.
	Store core.SessionStore

	// Knowledge backs rag_search. Defaults to an empty index.
	Knowledge Knowledge

	// Searcher backs web_search and WebSearch.
	Searcher websearch.Searcher

	// Sandbox executes code and SQL submissions.
	Sandbox sandbox.Runner

	// Submissions archives every code and SQL submission with its sandbox
	// outcome. Defaults to an in-memory store.
	Submissions artifact.Store

	Logger logging.Logger

	// Hooks are registered on the engine's HookManager at construction.
	Hooks []Hook

	// Instructions is the system prompt template. Defaults to
	// flow.DefaultInstructions.
	Instructions string

	// TurnTimeout bounds a whole model turn including tool dispatch. It is
	// the watchdog that releases a session whose model never answers.
	TurnTimeout time.Duration

	// ModelTimeout bounds each model call within a turn. Expiry ends the
	// turn with a timeout error.
	ModelTimeout time.Duration

	// MaxToolCalls caps chained tool calls per turn. The call after the cap
	// ends the turn with an error event. Values below 1 fall back to the
	// default.
	MaxToolCalls int

	// HistoryLimit is the number of most recent messages sent to the model.
	HistoryLimit int

	EventBuffer     int
	DispatchTimeout time.Duration
	RAGTopK         int

	// ToolObserver receives the outcome of every tool dispatch.
	ToolObserver tool.Observer

	ScorePolicy scoring.Policy

	// ScreenCandidateMessages rejects empty, placeholder and pasted code
	// answers without calling the model.
	ScreenCandidateMessages bool

	// JanitorSpec is the cron schedule of the eviction job. Empty disables
	// the janitor.
	JanitorSpec string

	// Retention is how long an archived completed session stays in memory.
	Retention time.Duration
}

const (
	defaultTurnTimeout  = 120 * time.Second
	defaultModelTimeout = 60 * time.Second
	defaultMaxToolCalls = 4
)

func defaultOptions() Options {
	return Options{
		Logger:          logging.NoOpLogger{},
		Instructions:    flow.DefaultInstructions,
		TurnTimeout:     defaultTurnTimeout,
		ModelTimeout:    defaultModelTimeout,
		MaxToolCalls:    defaultMaxToolCalls,
		HistoryLimit:    40,
		EventBuffer:     64,
		DispatchTimeout: 20 * time.Second,
		RAGTopK:         3,
		ScorePolicy:     scoring.PolicyAppend,
		JanitorSpec:     "@every 1m",
		Retention:       10 * time.Minute,
	}
}

// entry is the in-memory record of a live or recently archived session.
type entry struct {
	sess *core.Session

	// archived is set once the completed session was written to the store.
	archived time.Time
}

// inflight tracks a model turn between BeginTurn and its release.
type inflight struct {
	sess  *core.Session
	start time.Time
}

// Engine is the session orchestrator. It owns every live session, runs at
// most one model turn per session and keeps message and score histories
// append-only.
//
// Concurrency Model:
//   - Session state is guarded by the session itself
//   - The session registry and in-flight turn table share e.mu
//   - Each model turn runs on its own producer goroutine owned by flow.Consumer
//   - A turn is released exactly once, by OnFinish or by the stream watcher
type Engine struct {
	model      model.Model
	opts       Options
	logger     logging.Logger
	dispatcher *tool.Dispatcher
	consumer   *flow.Consumer
	hooks      *HookManager
	janitor    *cron.Cron

	mu       sync.RWMutex
	sessions map[string]*entry
	turns    map[string]inflight
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates an engine driving m.
func New(m model.Model, optFns ...func(o *Options)) (*Engine, error) {
	if m == nil {
		return nil, core.Errorf("engine.New", core.ErrInvalidArgument, "model is required")
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Knowledge == nil {
		opts.Knowledge = rag.NewIndex()
	}
	if opts.Searcher == nil {
		opts.Searcher = websearch.NewClient(func(o *websearch.Options) { o.Logger = opts.Logger })
	}
	if opts.Sandbox == nil {
		opts.Sandbox = sandbox.NewClient(func(o *sandbox.Options) { o.Logger = opts.Logger })
	}
	if opts.Submissions == nil {
		opts.Submissions = artifact.NewInMemoryStore()
	}
	if opts.Instructions == "" {
		opts.Instructions = flow.DefaultInstructions
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaultModelTimeout
	}
	if opts.MaxToolCalls < 1 {
		opts.MaxToolCalls = defaultMaxToolCalls
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		model:    m,
		opts:     opts,
		logger:   component(opts.Logger, "engine"),
		hooks:    NewHookManager(),
		sessions: make(map[string]*entry),
		turns:    make(map[string]inflight),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	for _, h := range opts.Hooks {
		e.hooks.Register(h)
	}

	dispatcher, err := tool.NewDispatcher([]tool.Tool{
		tool.NewRAGSearchTool(opts.Knowledge, opts.RAGTopK),
		tool.NewWebSearchTool(opts.Searcher),
		tool.NewScoreTaskTool(e),
	}, func(o *tool.DispatcherOptions) {
		o.Timeout = opts.DispatchTimeout
		o.Logger = component(opts.Logger, "tool")
		o.Observer = opts.ToolObserver
	})
	if err != nil {
		cancel()
		return nil, err
	}
	e.dispatcher = dispatcher

	e.consumer = flow.NewConsumer(m, dispatcher, func(o *flow.Options) {
		o.EventBuffer = opts.EventBuffer
		o.ModelTimeout = opts.ModelTimeout
		o.Logger = component(opts.Logger, "flow")
		o.OnToolResult = e.onToolResult
		o.OnFinish = e.onFinish
	})
	e.consumer.AddRequestProcessor(flow.NewInstructionsProcessor(opts.Instructions))
	e.consumer.AddRequestProcessor(flow.NewSnapshotProcessor())
	e.consumer.AddRequestProcessor(flow.NewHistoryProcessor(opts.HistoryLimit))

	if opts.JanitorSpec != "" {
		e.janitor = cron.New()
		if _, err := e.janitor.AddFunc(opts.JanitorSpec, func() { e.EvictArchived(time.Now()) }); err != nil {
			cancel()
			return nil, core.E("engine.New", core.ErrInvalidArgument, err)
		}
		e.janitor.Start()
	}

	return e, nil
}

// Hooks returns the engine's hook manager for registering lifecycle hooks.
func (e *Engine) Hooks() *HookManager { return e.hooks }

// Catalog returns the reference data the engine validates against.
func (e *Engine) Catalog() core.Catalog { return e.opts.Catalog }

// Tools returns the names of the tools offered to the model.
func (e *Engine) Tools() []string { return e.dispatcher.Names() }

// CreateSession starts a session for role and scenario in the created state.
func (e *Engine) CreateSession(ctx context.Context, roleID, scenarioID string) (core.SessionSnapshot, error) {
	role, err := e.opts.Catalog.Role(roleID)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	scenario, err := e.opts.Catalog.Scenario(scenarioID)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	if scenario.RoleID != role.ID {
		return core.SessionSnapshot{}, core.Errorf("engine.CreateSession", core.ErrInvalidArgument,
			"scenario %s does not belong to role %s", scenario.ID, role.ID)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.SessionSnapshot{}, errClosed("engine.CreateSession")
	}
	sess := core.NewSession(core.NewID(), role.ID, scenario.ID)
	e.sessions[sess.ID] = &entry{sess: sess}
	e.mu.Unlock()

	e.logger.Info("engine.session.created", "session_id", sess.ID, "role_id", role.ID, "scenario_id", scenario.ID)
	e.fire(ctx, &HookContext{Type: HookOnSessionCreated, SessionID: sess.ID, ScenarioID: scenario.ID})
	return sess.Snapshot(), nil
}

// GetSession returns a snapshot of the session. Sessions evicted from
// memory are reloaded from the archive.
func (e *Engine) GetSession(ctx context.Context, id string) (core.SessionSnapshot, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Sessions lists the ids of sessions currently held in memory.
func (e *Engine) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Messages returns the dialogue of a session.
func (e *Engine) Messages(ctx context.Context, id string) ([]core.Message, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Messages(), nil
}

// Scores returns the score history of a session.
func (e *Engine) Scores(ctx context.Context, id string) ([]core.Score, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.Scores(), nil
}

// Summary aggregates the effective score per task of a session.
func (e *Engine) Summary(ctx context.Context, id string) (scoring.Summary, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return scoring.Summary{}, err
	}
	scenario, err := e.opts.Catalog.Scenario(sess.ScenarioID)
	if err != nil {
		return scoring.Summary{}, err
	}
	return scoring.Summarize(scenario, sess.LatestScores()), nil
}

// AppendMessage appends a message from sender. Candidate messages are
// rejected with core.ErrInvalidState while a turn is in flight or after
// completion; system messages are always accepted.
func (e *Engine) AppendMessage(ctx context.Context, id string, sender core.Sender, text, taskID string) (core.Message, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return core.Message{}, err
	}
	if taskID != "" {
		scenario, err := e.opts.Catalog.Scenario(sess.ScenarioID)
		if err != nil {
			return core.Message{}, err
		}
		if _, ok := scenario.Task(taskID); !ok {
			return core.Message{}, core.Errorf("engine.AppendMessage", core.ErrInvalidArgument,
				"task %q not found in scenario %s", taskID, scenario.ID)
		}
	}
	msg, err := sess.AppendMessage(core.NewMessage(sess.ID, sender, text, taskID))
	if err != nil {
		return core.Message{}, err
	}
	e.logger.Debug("engine.message.appended", "session_id", sess.ID, "sender", string(sender), "task_id", taskID)
	return msg, nil
}

// AppendCandidateMessage appends a candidate answer.
func (e *Engine) AppendCandidateMessage(ctx context.Context, id, text, taskID string) (core.Message, error) {
	return e.AppendMessage(ctx, id, core.SenderCandidate, text, taskID)
}

// AppendSystemMessage appends a system note to the dialogue.
func (e *Engine) AppendSystemMessage(ctx context.Context, id, text, taskID string) (core.Message, error) {
	return e.AppendMessage(ctx, id, core.SenderSystem, text, taskID)
}

// RecordScore validates points against the task limit and appends the
// score. Invalid points fail with core.ErrInvalidScore and leave the
// session untouched. Scoring the last unscored task completes the session,
// deferred to the end of the turn when called from score_task.
func (e *Engine) RecordScore(ctx context.Context, id, taskID string, points float64, rationale string) (core.Score, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return core.Score{}, err
	}
	scenario, err := e.opts.Catalog.Scenario(sess.ScenarioID)
	if err != nil {
		return core.Score{}, err
	}
	task, accepted, err := scoring.ValidateFor(scenario, taskID, points)
	if err != nil {
		return core.Score{}, err
	}
	sc := core.NewScore(sess.ID, task, accepted, strings.TrimSpace(rationale))
	if err := sess.AppendScore(sc, e.opts.ScorePolicy.Unique()); err != nil {
		return core.Score{}, err
	}
	e.logger.Info("engine.score.recorded", "session_id", sess.ID, "task_id", task.ID, "awarded", sc.Awarded, "max_points", sc.Max)
	e.fire(ctx, &HookContext{Type: HookOnScore, SessionID: sess.ID, ScenarioID: scenario.ID, TurnID: sess.TurnID(), Score: &sc})

	if scoring.Summarize(scenario, sess.LatestScores()).Completed && sess.CompleteWhenIdle() {
		e.finalize(sess)
	}
	return sc, nil
}

// CompleteSession ends the interview. Completing a completed session is a
// no-op; completing during a model turn fails with core.ErrInvalidState.
func (e *Engine) CompleteSession(ctx context.Context, id string) (core.SessionSnapshot, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return core.SessionSnapshot{}, err
	}
	if err := sess.Complete(); err != nil {
		return core.SessionSnapshot{}, err
	}
	e.finalize(sess)
	return sess.Snapshot(), nil
}

// SubmitCode runs a coding task solution in the code sandbox and appends
// the outcome to the dialogue. Sandbox transport failures are reported as a
// failed result, not as an error.
func (e *Engine) SubmitCode(ctx context.Context, id, taskID string, req sandbox.CodeRequest) (sandbox.Result, error) {
	sess, task, err := e.submissionTarget(ctx, "engine.SubmitCode", id, taskID, core.TaskCoding)
	if err != nil {
		return sandbox.Result{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return sandbox.Result{}, core.Errorf("engine.SubmitCode", core.ErrInvalidArgument, "code is required")
	}
	if req.Language == "" {
		req.Language = task.Language
	}
	if req.Language == "" {
		req.Language = "python"
	}
	if req.TestsID == "" {
		req.TestsID = task.TestsID
	}

	res, err := e.opts.Sandbox.RunCode(ctx, req)
	if err != nil {
		e.logger.Warn("engine.submit.failed", "session_id", sess.ID, "task_id", task.ID, "kind", "code", "error", err)
		res = sandbox.Failed(err)
	}
	if _, err := sess.AppendMessage(core.NewMessage(sess.ID, core.SenderSystem,
		"Code execution result for "+task.ID+": "+res.String(), task.ID)); err != nil {
		return sandbox.Result{}, err
	}
	e.archiveSubmission(ctx, artifact.Submission{
		SessionID: sess.ID,
		TaskID:    task.ID,
		Kind:      artifact.KindCode,
		Language:  req.Language,
		Source:    req.Code,
	}, res)
	return res, nil
}

// SubmitSQL runs an SQL task query in the SQL sandbox and appends the
// outcome to the dialogue.
func (e *Engine) SubmitSQL(ctx context.Context, id, taskID string, req sandbox.SQLRequest) (sandbox.Result, error) {
	sess, task, err := e.submissionTarget(ctx, "engine.SubmitSQL", id, taskID, core.TaskSQL)
	if err != nil {
		return sandbox.Result{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return sandbox.Result{}, core.Errorf("engine.SubmitSQL", core.ErrInvalidArgument, "query is required")
	}
	if req.SQLScenarioID == "" {
		req.SQLScenarioID = task.SQLScenarioID
	}

	res, err := e.opts.Sandbox.RunSQL(ctx, req)
	if err != nil {
		e.logger.Warn("engine.submit.failed", "session_id", sess.ID, "task_id", task.ID, "kind", "sql", "error", err)
		res = sandbox.Failed(err)
	}
	if _, err := sess.AppendMessage(core.NewMessage(sess.ID, core.SenderSystem,
		"SQL execution result for "+task.ID+": "+res.String(), task.ID)); err != nil {
		return sandbox.Result{}, err
	}
	e.archiveSubmission(ctx, artifact.Submission{
		SessionID: sess.ID,
		TaskID:    task.ID,
		Kind:      artifact.KindSQL,
		Language:  "sql",
		Source:    req.Query,
	}, res)
	return res, nil
}

// Submissions lists the code and SQL a session submitted, oldest first.
func (e *Engine) Submissions(ctx context.Context, id string) ([]artifact.Submission, error) {
	if _, err := e.lookup(ctx, id); err != nil {
		return nil, err
	}
	return e.opts.Submissions.List(ctx, id)
}

// archiveSubmission records a submission. A failing archive never fails
// the submission itself.
func (e *Engine) archiveSubmission(ctx context.Context, sub artifact.Submission, res sandbox.Result) {
	sub.Success = res.Success
	sub.Output = res.String()
	if err := e.opts.Submissions.Save(ctx, sub); err != nil {
		e.logger.Warn("engine.submit.archive_failed", "session_id", sub.SessionID, "task_id", sub.TaskID, "error", err)
	}
}

func (e *Engine) submissionTarget(ctx context.Context, op, id, taskID string, want core.TaskType) (*core.Session, core.Task, error) {
	sess, err := e.lookup(ctx, id)
	if err != nil {
		return nil, core.Task{}, err
	}
	scenario, err := e.opts.Catalog.Scenario(sess.ScenarioID)
	if err != nil {
		return nil, core.Task{}, err
	}
	task, ok := scenario.Task(taskID)
	if !ok {
		return nil, core.Task{}, core.Errorf(op, core.ErrNotFound, "task %q not found in scenario %s", taskID, scenario.ID)
	}
	if task.Type != want {
		return nil, core.Task{}, core.Errorf(op, core.ErrInvalidArgument, "task %s is a %s task", task.ID, task.Type)
	}
	if sess.State() == core.StateCompleted {
		return nil, core.Task{}, core.Errorf(op, core.ErrInvalidState, "session %s is completed", sess.ID)
	}
	return sess, task, nil
}

// WebSearch queries the web search collaborator on behalf of a session.
func (e *Engine) WebSearch(ctx context.Context, id, query string, topK int) ([]websearch.Result, error) {
	if _, err := e.lookup(ctx, id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.Errorf("engine.WebSearch", core.ErrInvalidArgument, "query is required")
	}
	return e.opts.Searcher.Search(ctx, query, topK)
}

// Ping checks that the model backend is reachable.
func (e *Engine) Ping(ctx context.Context) (model.Info, error) {
	info := e.model.Info()
	if err := model.Ping(ctx, e.model); err != nil {
		if core.KindOf(err) == nil {
			err = core.E("engine.Ping", core.ErrUpstreamUnavailable, err)
		}
		return info, err
	}
	return info, nil
}

// Close stops the janitor, cancels in-flight turns, waits for them to
// release their sessions and archives every session still in memory.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.janitor != nil {
			<-e.janitor.Stop().Done()
		}

		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		e.wg.Wait()

		e.mu.RLock()
		entries := make([]*entry, 0, len(e.sessions))
		for _, ent := range e.sessions {
			entries = append(entries, ent)
		}
		e.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, ent := range entries {
			if err := e.opts.Store.Save(ctx, ent.sess.Snapshot()); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("engine.closed", "sessions", len(entries))
	})
	return e.closeErr
}

// lookup returns the live session, reloading it from the archive when it
// was evicted.
func (e *Engine) lookup(ctx context.Context, id string) (*core.Session, error) {
	e.mu.RLock()
	ent, ok := e.sessions[id]
	e.mu.RUnlock()
	if ok {
		return ent.sess, nil
	}

	snap, err := e.opts.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.Errorf("engine.lookup", core.ErrNotFound, "session %s not found", id)
		}
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.sessions[id]; ok {
		return ent.sess, nil
	}
	sess := core.RestoreSession(snap)
	ent = &entry{sess: sess}
	if sess.State() == core.StateCompleted {
		ent.archived = time.Now()
	}
	e.sessions[id] = ent
	e.logger.Debug("engine.session.restored", "session_id", id, "state", string(sess.State()))
	return sess, nil
}

// live returns a session that is held in memory without touching the store.
func (e *Engine) live(id string) *core.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if ent, ok := e.sessions[id]; ok {
		return ent.sess
	}
	return nil
}

// finalize archives a completed session once and fires the completion hook.
func (e *Engine) finalize(sess *core.Session) {
	e.mu.Lock()
	ent, ok := e.sessions[sess.ID]
	if !ok || !ent.archived.IsZero() {
		e.mu.Unlock()
		return
	}
	ent.archived = time.Now()
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.opts.Store.Save(ctx, sess.Snapshot()); err != nil {
		e.logger.Error("engine.session.archive_failed", "session_id", sess.ID, "error", err)
		e.mu.Lock()
		ent.archived = time.Time{}
		e.mu.Unlock()
	}
	e.logger.Info("engine.session.completed", "session_id", sess.ID, "messages", sess.MessageCount())
	e.fire(ctx, &HookContext{Type: HookOnSessionCompleted, SessionID: sess.ID, ScenarioID: sess.ScenarioID})
}

// fire runs hooks whose errors cannot change the outcome of an operation.
func (e *Engine) fire(ctx context.Context, hc *HookContext) {
	if err := e.hooks.Execute(ctx, hc); err != nil {
		e.logger.Warn("engine.hook.failed", "hook", string(hc.Type), "session_id", hc.SessionID, "error", err)
	}
}

func errClosed(op string) error {
	return core.Errorf(op, core.ErrInvalidState, "engine is closed")
}

// component scopes structured loggers to a component; other loggers are
// returned unchanged.
func component(l logging.Logger, name string) logging.Logger {
	if sl, ok := l.(*logging.StructuredLogger); ok {
		return sl.WithComponent(name)
	}
	return l
}
