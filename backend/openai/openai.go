// Package openai implements the backend contract on top of the OpenAI Chat
// Completions API, including function/tool calling.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"agentcore/backend"
)

// Options configure the OpenAI backend. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Backend wraps the OpenAI Chat Completions API behind the generic
// backend.Backend interface.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI backend from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// Next implements backend.Backend.
func (b *Backend) Next(ctx context.Context, req backend.Request, onDelta func(string)) (*backend.Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req),
		Model:               b.opts.Model,
		Temperature:         openai.Float(b.opts.Temperature),
		MaxCompletionTokens: openai.Int(b.opts.MaxCompletionTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api error: no choices returned")
	}

	choice := resp.Choices[0]
	out := &backend.Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if onDelta != nil && out.Text != "" {
		onDelta(out.Text)
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, backend.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	out.Usage = &backend.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// buildMessages converts normalized history into Chat Completion messages.
func buildMessages(req backend.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case backend.RoleUser:
			messages = append(messages, openai.UserMessage(m.Text))
		case backend.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Text))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case backend.RoleTool:
			for _, tr := range m.ToolReturns {
				messages = append(messages, openai.ToolMessage(tr.Content, tr.ID))
			}
		}
	}

	return messages
}

// buildTools converts tool definitions to Chat Completion tool params.
func buildTools(tools []backend.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// classifyError marks rate limits and server errors transient.
func classifyError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 || apierr.StatusCode >= 500 {
			return backend.MarkTransient(fmt.Errorf("openai api error: %w", err))
		}
	}
	return fmt.Errorf("openai api error: %w", err)
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name:          b.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
