// Package ollama implements the backend contract against a local Ollama
// server, the on-device variant: no API key, no network egress, tool calling
// through the native chat API.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"agentcore/backend"
)

// Options configures the Ollama backend.
type Options struct {
	BaseURL     string // default http://localhost:11434
	Model       string // e.g. "llama3.2", "qwen2.5-coder"
	Temperature float64
	MaxTokens   int
	HTTPTimeout time.Duration
}

// Backend wraps the Ollama chat API behind the generic backend.Backend
// interface.
type Backend struct {
	client *api.Client
	opts   Options
}

// New creates an Ollama backend. The model must already be pulled on the
// local server; Next surfaces a plain error if it is missing.
func New(optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{
		BaseURL:     "http://localhost:11434",
		Model:       "llama3.2",
		Temperature: 0.7,
		MaxTokens:   4096,
		HTTPTimeout: 120 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", opts.BaseURL, err)
	}

	httpClient := &http.Client{Timeout: opts.HTTPTimeout}
	return &Backend{client: api.NewClient(baseURL, httpClient), opts: opts}, nil
}

// Next implements backend.Backend. Responses stream; onDelta receives text
// fragments as they arrive.
func (b *Backend) Next(ctx context.Context, req backend.Request, onDelta func(string)) (*backend.Response, error) {
	chatReq := &api.ChatRequest{
		Model:    b.opts.Model,
		Messages: buildMessages(req),
		Stream:   ptr(true),
		Options: map[string]interface{}{
			"num_predict": b.opts.MaxTokens,
		},
	}
	if b.opts.Temperature > 0 {
		chatReq.Options["temperature"] = b.opts.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = buildTools(req.Tools)
	}

	var (
		text         strings.Builder
		toolCalls    []backend.ToolCall
		promptTokens int
		evalTokens   int
	)

	err := b.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			text.WriteString(resp.Message.Content)
			if onDelta != nil {
				onDelta(resp.Message.Content)
			}
		}
		for i, tc := range resp.Message.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", len(toolCalls)+i)
			}
			args := "{}"
			if argsBytes, err := json.Marshal(tc.Function.Arguments.ToMap()); err == nil {
				args = string(argsBytes)
			}
			toolCalls = append(toolCalls, backend.ToolCall{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			evalTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyError(err)
	}

	out := &backend.Response{
		Text:         text.String(),
		ToolCalls:    toolCalls,
		FinishReason: "stop",
		Usage: &backend.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: evalTokens,
			TotalTokens:      promptTokens + evalTokens,
		},
	}
	if len(toolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out, nil
}

// buildMessages converts normalized history to Ollama chat messages.
func buildMessages(req backend.Request) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)

	if req.Instructions != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.Instructions})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case backend.RoleUser:
			messages = append(messages, api.Message{Role: "user", Content: m.Text})
		case backend.RoleAssistant:
			msg := api.Message{Role: "assistant", Content: m.Text}
			for _, tc := range m.ToolCalls {
				args := api.NewToolCallFunctionArguments()
				var parsed map[string]any
				if err := json.Unmarshal([]byte(tc.Arguments), &parsed); err == nil {
					for k, v := range parsed {
						args.Set(k, v)
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			messages = append(messages, msg)
		case backend.RoleTool:
			for _, tr := range m.ToolReturns {
				messages = append(messages, api.Message{
					Role:       "tool",
					Content:    tr.Content,
					ToolName:   tr.Name,
					ToolCallID: tr.ID,
				})
			}
		}
	}

	return messages
}

// buildTools converts tool definitions to Ollama tool declarations. Only the
// flat property attributes (type, description, enum) survive the conversion;
// nested schemas degrade to their type name.
func buildTools(tools []backend.ToolDefinition) []api.Tool {
	out := make([]api.Tool, 0, len(tools))

	for _, t := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: api.NewToolPropertiesMap(),
		}

		if t.Parameters != nil {
			if required, ok := t.Parameters["required"].([]string); ok {
				params.Required = required
			}
			if props, ok := t.Parameters["properties"].(map[string]any); ok {
				for name, raw := range props {
					propSchema, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					prop := api.ToolProperty{}
					if desc, ok := propSchema["description"].(string); ok {
						prop.Description = desc
					}
					if typ, ok := propSchema["type"].(string); ok {
						prop.Type = api.PropertyType{typ}
					}
					if enum, ok := propSchema["enum"].([]any); ok {
						prop.Enum = enum
					}
					params.Properties.Set(name, prop)
				}
			}
		}

		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	return out
}

// classifyError marks connectivity failures and server errors transient so
// the turn loop retries with backoff. 404 (model not pulled) stays fatal.
func classifyError(err error) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "no such host") {
		return backend.MarkTransient(fmt.Errorf("ollama: %w", err))
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return backend.MarkTransient(fmt.Errorf("ollama: %w", err))
		}
	}

	return fmt.Errorf("ollama: %w", err)
}

// Healthcheck verifies that the Ollama server is reachable.
func (b *Backend) Healthcheck(ctx context.Context) error {
	if _, err := b.client.List(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name:          b.opts.Model,
		Provider:      "ollama",
		SupportsTools: true,
	}
}

func ptr[T any](v T) *T { return &v }
