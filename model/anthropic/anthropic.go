// Package anthropic provides a model.Model backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	MaxRetries  int
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
		MaxRetries:  2,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate adapts the Messages API (with tool use) into model.Response events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := buildSystem(req); len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		var err error
		if req.Stream {
			err = m.stream(ctx, params, out)
		} else {
			err = m.complete(ctx, params, out)
		}
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) error {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return core.E("anthropic.Generate", core.ErrUpstreamUnavailable, err)
		}
		if event.Type != "content_block_delta" {
			continue
		}
		delta := event.AsContentBlockDelta().Delta
		if delta.Type != "text_delta" || delta.Text == "" {
			continue
		}
		if !send(ctx, out, model.Response{
			ID:      message.ID,
			Partial: true,
			Content: core.NewTextContent("assistant", delta.Text),
		}) {
			return core.E("anthropic.Generate", core.ErrTimeout, ctx.Err())
		}
	}
	if err := stream.Err(); err != nil {
		return classify("anthropic.Generate", err)
	}
	if !send(ctx, out, finalResponse(&message)) {
		return core.E("anthropic.Generate", core.ErrTimeout, ctx.Err())
	}
	return nil
}

func (m *Model) complete(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) error {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return classify("anthropic.Generate", err)
	}
	if !send(ctx, out, finalResponse(resp)) {
		return core.E("anthropic.Generate", core.ErrTimeout, ctx.Err())
	}
	return nil
}

// finalResponse converts a complete message into the closing response of a
// generation: aggregated text plus every tool use block.
func finalResponse(msg *anthropic.Message) model.Response {
	var (
		parts []core.Part
		text  strings.Builder
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if len(toolBlock.Input) > 0 {
				args = string(toolBlock.Input)
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			}})
		}
	}
	if text.Len() > 0 {
		parts = append([]core.Part{core.TextPart{Text: text.String()}}, parts...)
	}

	finishReason := "stop"
	switch msg.StopReason {
	case "tool_use":
		finishReason = "tool_calls"
	case "max_tokens":
		finishReason = "length"
	}

	return model.Response{
		ID:           msg.ID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// buildSystem collects the instructions and every system content into system blocks.
func buildSystem(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

// buildMessages converts contents to Anthropic messages. Tool results travel
// in the user message that follows the assistant's tool use.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	toolResponses := map[string]core.FunctionResponse{}
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			if fr, ok := p.(core.FunctionResponsePart); ok && fr.FunctionResponse.ID != "" {
				toolResponses[fr.FunctionResponse.ID] = fr.FunctionResponse
			}
		}
	}

	var messages []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case "system", "tool":
			continue
		case "assistant":
			content, callIDs := assistantBlocks(c.Parts)
			if len(content) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(content...))
			var results []anthropic.ContentBlockParamUnion
			for _, id := range callIDs {
				if fr, ok := toolResponses[id]; ok {
					results = append(results, anthropic.NewToolResultBlock(id, fr.Response, fr.Error != ""))
				}
			}
			if len(results) > 0 {
				messages = append(messages, anthropic.NewUserMessage(results...))
			}
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}
	return messages
}

func assistantBlocks(parts []core.Part) ([]anthropic.ContentBlockParamUnion, []string) {
	var (
		content []anthropic.ContentBlockParamUnion
		callIDs []string
	)
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			input := map[string]any{}
			if part.FunctionCall.Arguments != "" {
				_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &input)
			}
			content = append(content, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
			callIDs = append(callIDs, part.FunctionCall.ID)
		}
	}
	return content, callIDs
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tool.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(params["required"])
		}
		u := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if u.OfTool != nil && tool.Function.Description != "" {
			u.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		out[i] = u
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		fields := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
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

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.E(op, core.ErrTimeout, err)
	}
	return core.E(op, core.ErrUpstreamUnavailable, err)
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
