// Package backend defines the pluggable decision-making contract of the turn
// loop. A Backend answers one question: given the conversation so far and
// the advertised capabilities, what happens next, either a final answer or a
// batch of tool-call requests. Variants (hosted API, script-driven,
// on-device) share the contract and differ only in how that question is
// answered.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a backend variant in configuration.
type Kind string

const (
	// KindAnthropic is the hosted Anthropic Messages API.
	KindAnthropic Kind = "anthropic"
	// KindOpenAI is the hosted OpenAI Chat Completions API.
	KindOpenAI Kind = "openai"
	// KindOllama is an on-device model served by a local Ollama instance.
	KindOllama Kind = "ollama"
	// KindScript is an external decision process speaking line-delimited JSON.
	KindScript Kind = "script"
)

// Role labels one conversation message.
type Role string

const (
	// RoleUser marks user-authored input.
	RoleUser Role = "user"
	// RoleAssistant marks backend output, including tool-call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool results fed back into the conversation.
	RoleTool Role = "tool"
)

// ToolCall is a function call request surfaced by a backend, unified across
// vendors so the turn loop needs no per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object of arguments
}

// ToolReturn carries one tool result back to the backend, tagged by call.
type ToolReturn struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one entry of the normalized conversation history.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`   // assistant messages
	ToolReturns []ToolReturn `json:"tool_returns,omitempty"` // tool messages
}

// ToolDefinition declaratively exposes a capability to the backend.
// Parameters is a JSON Schema object; each variant serializes it into
// whatever shape its protocol expects.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized input for one turn.
type Request struct {
	Instructions string           `json:"instructions,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// Usage captures token accounting for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the backend's answer for one turn: either final text or a
// batch of tool calls (text may accompany tool calls as commentary).
type Response struct {
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
}

// Final reports whether the response terminates the turn loop iteration.
func (r *Response) Final() bool { return len(r.ToolCalls) == 0 }

// Info contains metadata about a backend implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Backend is the minimal interface the turn loop drives. Next blocks until
// the backend has decided; onDelta (may be nil) surfaces best-effort partial
// text while the decision streams in. Implementations must respect ctx and
// return promptly once it is cancelled.
type Backend interface {
	Next(ctx context.Context, req Request, onDelta func(delta string)) (*Response, error)
	Info() Info
}

// transientError marks failures worth retrying with backoff (rate limits,
// connection resets, 5xx). errors.Is/As transparent via Unwrap.
type transientError struct{ err error }

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so the turn loop retries it with bounded backoff.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable by a backend.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
