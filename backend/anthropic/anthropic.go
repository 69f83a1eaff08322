// Package anthropic implements the backend contract on top of the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"agentcore/backend"
)

// Options configures the Anthropic backend (model id, sampling, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind the generic backend.Backend
// interface.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Next implements backend.Backend.
func (b *Backend) Next(ctx context.Context, req backend.Request, onDelta func(string)) (*backend.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       b.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	out := &backend.Response{FinishReason: "stop"}
	if resp.StopReason != "" {
		out.FinishReason = string(resp.StopReason)
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				out.Text += textBlock.Text
				if onDelta != nil {
					onDelta(textBlock.Text)
				}
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			out.ToolCalls = append(out.ToolCalls, backend.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	out.Usage = &backend.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return out, nil
}

// buildMessages converts normalized history to the Messages API shape. Tool
// returns ride in a user message directly after the assistant turn that
// requested them, as the API requires.
func buildMessages(messages []backend.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case backend.RoleUser:
			if m.Text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
			}
		case backend.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Text != "" {
				content = append(content, anthropic.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				var input interface{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case backend.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, tr := range m.ToolReturns {
				content = append(content, anthropic.NewToolResultBlock(tr.ID, tr.Content, tr.IsError))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		}
	}

	return out
}

// buildTools converts tool definitions to Anthropic tool params.
func buildTools(tools []backend.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			if required, ok := t.Parameters["required"]; ok {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []interface{}:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, t.Name)
	}

	return out
}

// classifyError marks rate limits and server errors transient.
func classifyError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 || apierr.StatusCode >= 500 {
			return backend.MarkTransient(fmt.Errorf("anthropic api error: %w", err))
		}
	}
	return fmt.Errorf("anthropic api error: %w", err)
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name:          string(b.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
