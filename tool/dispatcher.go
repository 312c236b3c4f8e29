package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/model"
)

var tracer = otel.Tracer("github.com/hupe1980/chatreview/tool")

// Result is the normalized outcome of one dispatched tool call. Content is
// always a JSON document ready to be handed back to the model.
type Result struct {
	CallID  string
	Name    string
	Content string
	IsError bool
	Err     error // classified cause when IsError
}

// Response converts the result into its model content form.
func (r Result) Response() core.FunctionResponse {
	fr := core.FunctionResponse{ID: r.CallID, Name: r.Name, Response: r.Content}
	if r.Err != nil {
		fr.Error = r.Err.Error()
	}
	return fr
}

// Observer receives the outcome of every dispatch, e.g. for metrics.
type Observer func(tool string, duration time.Duration, err error)

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Timeout  time.Duration // per dispatch, 0 disables
	Logger   logging.Logger
	Observer Observer
}

// Dispatcher maps recognized tool calls onto registered tools. It never
// returns an error: every failure, including an unknown tool name, becomes
// an error Result so the turn can continue.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool
	opts  DispatcherOptions
}

// NewDispatcher creates a dispatcher with the given tools.
func NewDispatcher(tools []Tool, optFns ...func(o *DispatcherOptions)) (*Dispatcher, error) {
	opts := DispatcherOptions{
		Timeout: 20 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	d := &Dispatcher{tools: make(map[string]Tool, len(tools)), opts: opts}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a tool. Names must be unique.
func (d *Dispatcher) Register(t Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t == nil || t.Name() == "" {
		return core.Errorf("tool.Register", core.ErrInvalidArgument, "tool must have a name")
	}
	if _, exists := d.tools[t.Name()]; exists {
		return core.Errorf("tool.Register", core.ErrInvalidArgument, "tool %q already registered", t.Name())
	}
	d.tools[t.Name()] = t
	return nil
}

// Has reports whether name is a registered tool.
func (d *Dispatcher) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.tools[name]
	return ok
}

// Names returns the registered tool names in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.tools))
	for n := range d.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool declarations advertised to the model.
func (d *Dispatcher) Definitions() []model.ToolDefinition {
	names := d.Names()
	d.mu.RLock()
	defer d.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, n := range names {
		t := d.tools[n]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Dispatch runs call synchronously within the turn's context, bounded by
// the dispatch timeout. Panics are recovered and reported as execution
// errors.
func (d *Dispatcher) Dispatch(turn *core.TurnContext, call core.ToolCall) Result {
	if call.ID == "" {
		call.ID = core.NewID()
	}
	res := Result{CallID: call.ID, Name: call.Name}

	d.mu.RLock()
	impl, ok := d.tools[call.Name]
	d.mu.RUnlock()

	logger := d.opts.Logger
	if turn != nil {
		logger = turn.Logger()
	}

	if !ok {
		err := core.Errorf("tool.Dispatch", core.ErrUnsupportedTool, "tool %q is not available", call.Name)
		logger.Warn("tool.dispatch.unsupported", "tool", call.Name)
		d.observe(call.Name, 0, err)
		return d.errorResult(res, &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("tool %q is not available; continue the interview without it", call.Name),
			Code:    CodeUnsupported,
			Err:     err,
		})
	}

	parent := context.Background()
	if turn != nil {
		parent = turn.Context
	}
	ctx, span := tracer.Start(parent, "tool.dispatch", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()
	cancel := func() {}
	if d.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
	}
	defer cancel()

	toolCtx := core.NewToolContext(ctx, turn, call.ID)
	start := time.Now()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				logger.Error("tool.dispatch.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
				o = outcome{err: fmt.Errorf("tool %s panicked: %v", call.Name, r)}
			}
			done <- o
		}()
		o.value, o.err = impl.Call(toolCtx, call.Arguments)
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		kind := core.ErrTimeout
		if parent.Err() != nil && parent.Err() != context.DeadlineExceeded {
			kind = core.ErrUpstreamUnavailable
		}
		o.err = &ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("tool did not finish: %v", ctx.Err()),
			Code:    CodeTimeout,
			Err:     core.E("tool.Dispatch", kind, ctx.Err()),
		}
	}
	dur := time.Since(start)
	d.observe(call.Name, dur, o.err)

	if o.err != nil {
		toolErr := wrapError(call.Name, o.err)
		span.RecordError(o.err)
		span.SetStatus(codes.Error, toolErr.Code)
		logExecuted(logger, call.Name, dur, toolErr)
		return d.errorResult(res, toolErr)
	}

	payload, err := json.Marshal(o.value)
	if err != nil {
		return d.errorResult(res, &ToolError{Tool: call.Name, Message: fmt.Sprintf("encode result: %v", err), Code: CodeExecution, Err: err})
	}
	logExecuted(logger, call.Name, dur, nil)
	res.Content = string(payload)
	return res
}

type toolCallLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
}

func logExecuted(logger logging.Logger, name string, dur time.Duration, te *ToolError) {
	var err error
	if te != nil {
		err = te
	}
	if tl, ok := logger.(toolCallLogger); ok {
		tl.LogToolCall(name, dur, err == nil, err)
		return
	}
	if te != nil {
		logger.Info("tool.dispatch.executed", "tool", name, "duration_ms", dur.Milliseconds(), "error", true, "code", te.Code)
		return
	}
	logger.Info("tool.dispatch.executed", "tool", name, "duration_ms", dur.Milliseconds(), "error", false)
}

func (d *Dispatcher) errorResult(res Result, te *ToolError) Result {
	payload, _ := json.Marshal(map[string]any{"error": te.Message, "code": te.Code})
	res.Content = string(payload)
	res.IsError = true
	res.Err = te
	return res
}

func (d *Dispatcher) observe(name string, dur time.Duration, err error) {
	if d.opts.Observer != nil {
		d.opts.Observer(name, dur, err)
	}
}
