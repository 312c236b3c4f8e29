// Package openai provides an implementation of model.Model on top of an
// OpenAI-compatible Chat Completions endpoint such as LM Studio. It adapts the
// normalized Request/Response structures into the SDK's message format and
// back, including streaming and function/tool calling.
package openai

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/model"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// so complete function call parts can be emitted with the final response.
type aggCall struct{ id, name, args string }

// Options configure the OpenAI-compatible model adapter.
type Options struct {
	// BaseURL is the API root or the full chat/completions URL.
	BaseURL string
	// APIKey is sent as bearer token. Local servers accept any value.
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	MaxRetries          int
}

// Model wraps the Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new model with a client configured from Options.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(NormalizeBaseURL(opts.BaseURL)))
	}
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		APIKey:              "lm-studio",
		Model:               "local-model",
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
		MaxRetries:          2,
	}
}

// NormalizeBaseURL turns a full chat/completions URL into the API root the
// SDK expects. The result always ends with a slash.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req))
		var err error
		if req.Stream {
			err = m.handleStreaming(ctx, params, out)
		} else {
			err = m.handleNonStreaming(ctx, params, out)
		}
		if err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

// Ping lists the served models, which is the cheapest authenticated call.
func (m *Model) Ping(ctx context.Context) error {
	if _, err := m.client.Models.List(ctx); err != nil {
		return classify("openai.Ping", err)
	}
	return nil
}

// buildMessages converts normalized contents into chat messages. Tool
// responses are attached right after the assistant message that requested
// them.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	toolResponses, order := collectToolResponses(req)
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		if c.Role == "tool" {
			continue
		}
		text := c.Text()
		switch c.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(text))
		case "user":
			messages = append(messages, openai.UserMessage(text))
		case "assistant":
			toolCalls, callIDs := extractToolCalls(c)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			msg := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text != "" {
				msg.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: msg})
			for _, id := range callIDs {
				if resp, ok := toolResponses[id]; ok {
					messages = append(messages, openai.ToolMessage(resp, id))
					delete(toolResponses, id)
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := toolResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// collectToolResponses indexes tool responses by call id preserving first-seen order.
func collectToolResponses(req model.Request) (map[string]string, []string) {
	responses := map[string]string{}
	order := []string{}
	for _, c := range req.Contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, exists := responses[fr.FunctionResponse.ID]; exists {
				continue
			}
			responses[fr.FunctionResponse.ID] = fr.FunctionResponse.Response
			order = append(order, fr.FunctionResponse.ID)
		}
	}
	return responses, order
}

func extractToolCalls(c core.Content) ([]openai.ChatCompletionMessageToolCallParam, []string) {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, fc := range c.FunctionCalls() {
		args := fc.Arguments
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: fc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: args,
			},
		})
		callIDs = append(callIDs, fc.ID)
	}
	return toolCalls, callIDs
}

func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       m.opts.Model,
		Temperature: openai.Float(m.opts.Temperature),
	}
	if m.opts.MaxCompletionTokens > 0 {
		params.MaxTokens = openai.Int(m.opts.MaxCompletionTokens)
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
) error {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text     strings.Builder
		toolAgg  = map[int64]*aggCall{}
		finish   string
		id       string
		usage    *model.TokenUsage
		finished bool
	)
	for stream.Next() {
		ck := stream.Current()
		if ck.ID != "" {
			id = ck.ID
		}
		if ck.Usage.TotalTokens > 0 {
			usage = toUsage(ck.Usage)
		}
		for _, ch := range ck.Choices {
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
			}
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				if !send(ctx, out, model.Response{
					ID:      id,
					Partial: true,
					Content: core.NewTextContent("assistant", ch.Delta.Content),
				}) {
					return core.E("openai.Generate", core.ErrTimeout, ctx.Err())
				}
			}
			if ch.FinishReason != "" {
				finish = ch.FinishReason
				finished = true
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classify("openai.Generate", err)
	}
	if !finished {
		finish = "stop"
	}
	if !send(ctx, out, model.Response{
		ID:           id,
		Content:      finalContent(text.String(), toolAgg),
		FinishReason: finish,
		Usage:        usage,
	}) {
		return core.E("openai.Generate", core.ErrTimeout, ctx.Err())
	}
	return nil
}

func finalContent(text string, toolAgg map[int64]*aggCall) core.Content {
	parts := make([]core.Part, 0, len(toolAgg)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	idx := make([]int64, 0, len(toolAgg))
	for i := range toolAgg {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })
	for _, i := range idx {
		ac := toolAgg[i]
		if ac.name == "" {
			continue
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        ac.id,
			Name:      ac.name,
			Arguments: ac.args,
		}})
	}
	return core.Content{Role: "assistant", Parts: parts}
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
) error {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classify("openai.Generate", err)
	}
	if len(resp.Choices) == 0 {
		return core.Errorf("openai.Generate", core.ErrUpstreamUnavailable, "no choices returned")
	}
	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}
	if !send(ctx, out, model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: ch0.FinishReason,
		Usage:        toUsage(resp.Usage),
	}) {
		return core.E("openai.Generate", core.ErrTimeout, ctx.Err())
	}
	return nil
}

func toUsage(u openai.CompletionUsage) *model.TokenUsage {
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// classify maps transport failures onto error kinds. Deadline expiry is a
// timeout; everything else means the upstream could not serve the request.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.E(op, core.ErrTimeout, err)
	}
	return core.E(op, core.ErrUpstreamUnavailable, err)
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
