package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/tool"
)

// TurnResult summarizes a finished turn.
type TurnResult struct {
	Answer    string // final plain answer, reasoning and markup removed
	Err       error  // set when the turn ended with an error event
	Rounds    int
	ToolCalls []core.ToolCall
	Results   []tool.Result
}

// Options configure a Consumer.
type Options struct {
	// EventBuffer is the capacity of the event channel between the producer
	// and the reader.
	EventBuffer int
	Logger      logging.Logger

	// ModelTimeout bounds a single model call. Zero leaves only the turn
	// deadline.
	ModelTimeout time.Duration

	// OnToolResult runs after every dispatch, before the next round.
	OnToolResult func(turn *core.TurnContext, call core.ToolCall, res tool.Result)

	// OnFinish runs once per turn before the terminal event is delivered,
	// even if the reader went away. It returns the content of the done
	// event.
	OnFinish func(turn *core.TurnContext, res TurnResult) string
}

// Consumer drives model turns. It is safe for concurrent use; every Run
// owns its own producer goroutine.
type Consumer struct {
	model      model.Model
	dispatcher Dispatcher
	processors []RequestProcessor
	opts       Options
	tracer     trace.Tracer
}

// NewConsumer creates a consumer for m that resolves tool calls with d.
func NewConsumer(m model.Model, d Dispatcher, optFns ...func(o *Options)) *Consumer {
	opts := Options{
		EventBuffer: 64,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Consumer{
		model:      m,
		dispatcher: d,
		opts:       opts,
		tracer:     otel.Tracer("github.com/hupe1980/chatreview/flow"),
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (c *Consumer) AddRequestProcessor(p RequestProcessor) {
	c.processors = append(c.processors, p)
}

// Model returns the underlying model.
func (c *Consumer) Model() model.Model { return c.model }

// Run starts a turn and returns its event stream. The turn is bounded by
// turn.Context; streamCtx only controls delivery to the reader. A reader
// that stops reading is detached once the turn deadline passes.
func (c *Consumer) Run(streamCtx context.Context, turn *core.TurnContext, in TurnInput) *Stream {
	events := make(chan core.TokenEvent, c.opts.EventBuffer)
	done := make(chan struct{})
	closed := make(chan struct{})
	em := &emitter{out: events, ctx: streamCtx, turn: turn.Context, closed: closed}

	go func() {
		defer close(done)
		defer close(events)
		c.run(turn, in, em)
	}()
	return newStream(streamCtx, events, done, closed)
}

func (c *Consumer) run(turn *core.TurnContext, in TurnInput, em *emitter) {
	start := time.Now()
	var (
		res   TurnResult
		extra []core.Content
	)

	for res.Err == nil {
		res.Rounds++
		req, err := c.buildRequest(turn, &in, extra)
		if err != nil {
			res.Err = err
			break
		}

		answer, calls, err := c.round(turn, req, res.Rounds, em)
		if err != nil {
			res.Err = err
			break
		}
		if len(calls) == 0 {
			res.Answer = answer
			break
		}

		assistant := core.Content{Role: "assistant"}
		if answer != "" {
			assistant.Parts = append(assistant.Parts, core.TextPart{Text: answer})
		}
		responses := core.Content{Role: "tool"}
		for _, call := range calls {
			if err := turn.Limiter.Increment(); err != nil {
				res.Err = err
				break
			}
			if call.ID == "" {
				call.ID = core.NewID()
			}
			call.SessionID = turn.SessionID

			em.emit(core.ToolCallEvent(call))
			r := c.dispatcher.Dispatch(turn, call)
			if c.opts.OnToolResult != nil {
				c.opts.OnToolResult(turn, call, r)
			}
			res.ToolCalls = append(res.ToolCalls, call)
			res.Results = append(res.Results, r)

			assistant.Parts = append(assistant.Parts, core.FunctionCallPart{FunctionCall: call.FunctionCall()})
			responses.Parts = append(responses.Parts, core.FunctionResponsePart{FunctionResponse: r.Response()})
		}
		extra = append(extra, assistant, responses)

		if res.Err == nil && turn.Err() != nil {
			res.Err = classify(turn.Context, turn.Err())
		}
	}

	content := res.Answer
	if c.opts.OnFinish != nil {
		content = c.opts.OnFinish(turn, res)
	}
	if res.Err != nil {
		em.emit(core.ErrorEvent(res.Err))
	} else {
		em.emit(core.DoneEvent(content))
	}

	outcome := "done"
	if res.Err != nil {
		outcome = "error"
	}
	if tl, ok := turn.Logger().(turnLogger); ok {
		tl.LogTurn(outcome, len(res.ToolCalls), time.Since(start), res.Err)
	} else {
		turn.LogInfo("flow.turn.complete", "outcome", outcome, "rounds", res.Rounds, "tool_calls", len(res.ToolCalls))
	}
}

func (c *Consumer) buildRequest(turn *core.TurnContext, in *TurnInput, extra []core.Content) (model.Request, error) {
	req := model.Request{Stream: true}
	if c.dispatcher != nil {
		req.Tools = c.dispatcher.Definitions()
	}
	for _, p := range c.processors {
		if err := p.ProcessRequest(turn, in, &req); err != nil {
			return req, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}
	req.Contents = append(req.Contents, extra...)
	return req, nil
}

// round performs one model call. It returns the plain answer and the tool
// calls requested in this round.
func (c *Consumer) round(turn *core.TurnContext, req model.Request, n int, em *emitter) (string, []core.ToolCall, error) {
	ctx, span := c.tracer.Start(turn.Context, "flow.round", trace.WithAttributes(
		attribute.String("session.id", turn.SessionID),
		attribute.Int("round", n),
	))
	defer span.End()
	if c.opts.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	respCh, errCh := c.model.Generate(ctx, req)

	var (
		sc      scanner
		sawText bool
		native  []core.FunctionCall
		err     error
	)
loop:
	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				break loop
			}
			if resp.Partial {
				if text := resp.Content.Text(); text != "" {
					sawText = true
					em.token(sc.Feed(text))
				}
				continue
			}
			if !sawText {
				em.token(sc.Feed(resp.Content.Text()))
			}
			native = append(native, resp.Content.FunctionCalls()...)
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}
	if err == nil {
		err = <-errCh
	}

	c.logModelCall(turn, n, time.Since(start), err)
	if err != nil {
		err = classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", nil, err
	}

	em.token(sc.Flush())
	ex := Extract(sc.Text())

	var calls []core.ToolCall
	for _, fc := range native {
		args, perr := core.ParseArguments(fc.Arguments)
		if perr != nil {
			turn.LogWarn("flow.tool_call.bad_arguments", "tool", fc.Name, "error", perr.Error())
			args = map[string]any{}
		}
		calls = append(calls, core.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
	}
	if len(calls) == 0 && ex.IsToolCall() {
		calls = append(calls, *ex.ToolCall)
	}
	if len(calls) == 0 {
		em.token(sc.Held())
	}
	span.SetAttributes(attribute.Int("tool_calls", len(calls)))
	return ex.PlainText, calls, nil
}

func (c *Consumer) logModelCall(turn *core.TurnContext, n int, dur time.Duration, err error) {
	name := c.model.Info().Name
	if ml, ok := turn.Logger().(modelCallLogger); ok {
		ml.LogModelCall(name, n, dur, err == nil, err)
		return
	}
	turn.LogDebug("flow.round.complete", "model", name, "round", n, "duration_ms", dur.Milliseconds(), "error", err != nil)
}

// classify attaches an error kind to a model failure. Expiry of the model
// call or turn deadline is a timeout; anything else is an upstream failure
// unless the error already carries a kind.
func classify(ctx context.Context, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.E("flow.Run", core.ErrTimeout, err)
	}
	return core.E("flow.Run", core.ErrUpstreamUnavailable, err)
}

type modelCallLogger interface {
	LogModelCall(model string, round int, dur time.Duration, success bool, err error)
}

type turnLogger interface {
	LogTurn(outcome string, toolCalls int, dur time.Duration, err error)
}
