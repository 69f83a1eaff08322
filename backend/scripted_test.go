package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedReplaysQueueThenExhausts(t *testing.T) {
	s := NewScripted(
		&Response{ToolCalls: []ToolCall{{ID: "1", Name: "glob", Arguments: `{"pattern":"**/*.go"}`}}},
		&Response{Text: "final answer", FinishReason: "stop"},
	)

	resp, err := s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Final())
	assert.Equal(t, "glob", resp.ToolCalls[0].Name)

	resp, err = s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Final())
	assert.Equal(t, "final answer", resp.Text)

	// Exhausted queue falls back to a plain final answer.
	resp, err = s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Final())

	assert.Equal(t, 3, s.Calls())
}

func TestScriptedRecordsRequests(t *testing.T) {
	s := NewScripted()

	_, err := s.Next(context.Background(), Request{
		Instructions: "be brief",
		Messages:     []Message{{Role: RoleUser, Text: "hi"}},
	}, nil)
	require.NoError(t, err)

	reqs := s.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be brief", reqs[0].Instructions)
	assert.Equal(t, "hi", reqs[0].Messages[0].Text)
}

func TestScriptedFailWithDrainsErrorsFirst(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(&Response{Text: "ok"}).FailWith(boom)

	_, err := s.Next(context.Background(), Request{}, nil)
	assert.ErrorIs(t, err, boom)

	resp, err := s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestScriptedHonorsCancelledContext(t *testing.T) {
	s := NewScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx, Request{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Calls())
}

func TestScriptedClonesResponses(t *testing.T) {
	s := NewScripted().Repeat(&Response{ToolCalls: []ToolCall{{ID: "1", Name: "glob"}}})

	first, err := s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	first.ToolCalls[0].Name = "mutated"

	second, err := s.Next(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "glob", second.ToolCalls[0].Name)
}

func TestTransientMarking(t *testing.T) {
	base := errors.New("rate limited")

	assert.False(t, IsTransient(base))
	marked := MarkTransient(base)
	assert.True(t, IsTransient(marked))
	assert.ErrorIs(t, marked, base)
	assert.Nil(t, MarkTransient(nil))
}
