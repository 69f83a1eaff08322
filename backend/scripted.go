package backend

import (
	"context"
	"sync"
)

// Scripted is a deterministic in-memory Backend replaying a queued sequence
// of responses. Useful for tests, replay verification and examples.
type Scripted struct {
	mu        sync.Mutex
	queue     []*Response
	repeat    *Response
	exhausted *Response
	requests  []Request
	errs      []error
}

// NewScripted constructs a Scripted backend that pops one queued response
// per Next call. Once the queue is empty it returns a plain final answer.
func NewScripted(responses ...*Response) *Scripted {
	return &Scripted{
		queue:     responses,
		exhausted: &Response{Text: "done", FinishReason: "stop"},
	}
}

// Repeat makes the backend return resp on every call, ignoring the queue.
// Used to simulate a backend that never stops requesting tool calls.
func (s *Scripted) Repeat(resp *Response) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = resp
	return s
}

// FailWith queues errors returned before any responses, one per call.
// Lets tests exercise the retry path.
func (s *Scripted) FailWith(errs ...error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

// Next implements Backend.
func (s *Scripted) Next(ctx context.Context, req Request, onDelta func(string)) (*Response, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}

	if s.repeat != nil {
		return cloneResponse(s.repeat), nil
	}

	if len(s.queue) == 0 {
		return cloneResponse(s.exhausted), nil
	}

	resp := s.queue[0]
	s.queue = s.queue[1:]
	if onDelta != nil && resp.Text != "" {
		onDelta(resp.Text)
	}
	return cloneResponse(resp), nil
}

// Info implements Backend.
func (s *Scripted) Info() Info {
	return Info{Name: "scripted", Provider: "test", SupportsTools: true}
}

// Requests returns a copy of every Request observed, in call order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns how many times Next was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func cloneResponse(r *Response) *Response {
	out := *r
	out.ToolCalls = append([]ToolCall(nil), r.ToolCalls...)
	return &out
}
