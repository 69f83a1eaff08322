package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/backend"
	"agentcore/edit"
	"agentcore/session"
	"agentcore/tool"
	"agentcore/trace"
)

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	r := tool.NewRegistry()
	monitor := edit.NewMonitor()
	for _, d := range []tool.Descriptor{
		tool.NewReadFile(),
		tool.NewWriteFile(),
		tool.NewEditFile(monitor),
		tool.NewListDir(),
		tool.NewGlob(),
	} {
		require.NoError(t, r.Register(d))
	}
	return r
}

func toolCallResponse(calls ...backend.ToolCall) *backend.Response {
	return &backend.Response{ToolCalls: calls, FinishReason: "tool_calls"}
}

func TestRunCompletesOnFinalAnswer(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(&backend.Response{Text: "done thinking", FinishReason: "stop"})
	c := New(newTestRegistry(t), be, ws)

	outcome, err := c.Run(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, outcome.Reason)
	assert.Equal(t, "done thinking", outcome.FinalText)
	assert.Equal(t, 1, outcome.Turns)
	assert.NotEmpty(t, outcome.SessionID)
}

func TestNewFreezesRegistry(t *testing.T) {
	r := newTestRegistry(t)
	assert.False(t, r.Frozen())

	New(r, backend.NewScripted(), t.TempDir())
	assert.True(t, r.Frozen())
}

func TestRunWriteThenEditScenario(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(
		toolCallResponse(backend.ToolCall{
			ID: "1", Name: "write_file",
			Arguments: `{"path":"a.txt","content":"hello world"}`,
		}),
		toolCallResponse(backend.ToolCall{
			ID: "2", Name: "edit_file",
			Arguments: `{"path":"a.txt","old_string":"world","new_string":"there"}`,
		}),
		&backend.Response{Text: "edited the file", FinishReason: "stop"},
	)
	tracker := trace.NewTracker(0)
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.Tracker = tracker
	})

	outcome, err := c.Run(context.Background(), "", "create and fix a.txt")
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, outcome.Reason)
	assert.Equal(t, 3, outcome.Turns)

	data, err := os.ReadFile(filepath.Join(ws, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))

	snap, ok := tracker.Snapshot(outcome.OperationID)
	require.True(t, ok)
	require.Len(t, snap.ToolCalls, 2)
	assert.Equal(t, "write_file", snap.ToolCalls[0].Name)
	assert.Equal(t, "edit_file", snap.ToolCalls[1].Name)
	assert.True(t, snap.ToolCalls[0].Success)
	assert.True(t, snap.ToolCalls[1].Success)
}

func TestRunStopsAtTurnCeiling(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted().Repeat(toolCallResponse(backend.ToolCall{
		ID: "1", Name: "list_dir", Arguments: `{}`,
	}))
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.MaxTurns = 3
	})

	outcome, err := c.Run(context.Background(), "", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, ReasonTurnLimit, outcome.Reason)
	assert.Equal(t, 3, outcome.Turns)
	assert.Equal(t, 3, be.Calls(), "exactly one backend call per turn")
}

func TestRunFeedsUnknownToolErrorBack(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(
		toolCallResponse(backend.ToolCall{ID: "1", Name: "launch_rocket", Arguments: `{}`}),
		&backend.Response{Text: "understood", FinishReason: "stop"},
	)
	tracker := trace.NewTracker(0)
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.Tracker = tracker
	})

	outcome, err := c.Run(context.Background(), "", "go")
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, outcome.Reason)

	reqs := be.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, backend.RoleTool, last.Role)
	require.Len(t, last.ToolReturns, 1)
	assert.True(t, last.ToolReturns[0].IsError)
	assert.Contains(t, last.ToolReturns[0].Content, "unknown tool")

	// The rejected call still appears in the execution ledger.
	snap, ok := tracker.Snapshot(outcome.OperationID)
	require.True(t, ok)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, "launch_rocket", snap.ToolCalls[0].Name)
	assert.False(t, snap.ToolCalls[0].Success)
	assert.Contains(t, snap.ToolCalls[0].Error, "unknown tool")
}

func TestRunMalformedArgumentsFedBack(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(
		toolCallResponse(backend.ToolCall{ID: "1", Name: "write_file", Arguments: `{"path": `}),
		&backend.Response{Text: "ok", FinishReason: "stop"},
	)
	c := New(newTestRegistry(t), be, ws)

	_, err := c.Run(context.Background(), "", "go")
	require.NoError(t, err)

	reqs := be.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Len(t, last.ToolReturns, 1)
	assert.True(t, last.ToolReturns[0].IsError)
	assert.Contains(t, last.ToolReturns[0].Content, "invalid_parameters")
}

func TestRunResultsKeepRequestOrder(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(
		toolCallResponse(
			backend.ToolCall{ID: "c1", Name: "write_file", Arguments: `{"path":"a.txt","content":"a"}`},
			backend.ToolCall{ID: "c2", Name: "write_file", Arguments: `{"path":"b.txt","content":"b"}`},
			backend.ToolCall{ID: "c3", Name: "write_file", Arguments: `{"path":"c.txt","content":"c"}`},
		),
		&backend.Response{Text: "ok", FinishReason: "stop"},
	)
	c := New(newTestRegistry(t), be, ws)

	_, err := c.Run(context.Background(), "", "write three files")
	require.NoError(t, err)

	reqs := be.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Len(t, last.ToolReturns, 3)
	assert.Equal(t, "c1", last.ToolReturns[0].ID)
	assert.Equal(t, "c2", last.ToolReturns[1].ID)
	assert.Equal(t, "c3", last.ToolReturns[2].ID)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := os.Stat(filepath.Join(ws, name))
		assert.NoError(t, err)
	}
}

func TestRunCancelsMidToolExecution(t *testing.T) {
	ws := t.TempDir()

	var steps atomic.Int32
	r := tool.NewRegistry()
	require.NoError(t, r.Register(tool.NewFuncDescriptor(
		"long_task", "Long Task", "Runs a ten-step task, one step at a time.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(workspaceRoot string, params tool.Params) (tool.Invocation, error) {
			return &tool.InvocationFunc{
				Desc:  "long task",
				Paths: []string{workspaceRoot},
				Run: func(ctx context.Context, progress tool.ProgressFunc) tool.Result {
					for i := 0; i < 10; i++ {
						select {
						case <-ctx.Done():
							return tool.Cancelled()
						case <-time.After(20 * time.Millisecond):
						}
						steps.Add(1)
					}
					return tool.Text("all steps finished", "")
				},
			}, nil
		},
	)))

	be := backend.NewScripted().Repeat(toolCallResponse(
		backend.ToolCall{ID: "1", Name: "long_task", Arguments: `{}`},
	))
	c := New(r, be, ws)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(70 * time.Millisecond)
		cancel()
	}()

	outcome, err := c.Run(ctx, "", "work through the steps")
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, outcome.Reason)

	n := int(steps.Load())
	assert.Greater(t, n, 0, "cancellation arrived while the task was underway")
	assert.Less(t, n, 10, "the task must stop at the next step boundary")
}

func TestRunReplayYieldsIdenticalHistory(t *testing.T) {
	run := func() []trace.ToolCallRecord {
		ws := t.TempDir()
		be := backend.NewScripted(
			toolCallResponse(backend.ToolCall{
				ID: "1", Name: "write_file",
				Arguments: `{"path":"a.txt","content":"hello world"}`,
			}),
			toolCallResponse(backend.ToolCall{
				ID: "2", Name: "edit_file",
				Arguments: `{"path":"a.txt","old_string":"world","new_string":"there"}`,
			}),
			&backend.Response{Text: "done", FinishReason: "stop"},
		)
		tracker := trace.NewTracker(0)
		c := New(newTestRegistry(t), be, ws, func(o *Options) {
			o.Tracker = tracker
		})

		outcome, err := c.Run(context.Background(), "", "create and fix a.txt")
		require.NoError(t, err)
		require.Equal(t, ReasonCompleted, outcome.Reason)

		snap, ok := tracker.Snapshot(outcome.OperationID)
		require.True(t, ok)
		return snap.ToolCalls
	}

	first := run()
	second := run()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Args, second[i].Args)
		assert.Equal(t, first[i].Success, second[i].Success)
		assert.Equal(t, first[i].Error, second[i].Error)
	}
}

func TestRunCancelledSavesSessionForResume(t *testing.T) {
	ws := t.TempDir()
	store := session.NewInMemoryStore()
	be := backend.NewScripted(&backend.Response{Text: "never seen"})
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.Store = store
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := c.Run(ctx, "", "do things")
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, outcome.Reason)

	sess, err := store.Get(context.Background(), outcome.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.Paused)
	assert.Equal(t, "do things", sess.LastPrompt)
}

func TestRunRetriesTransientBackendFailure(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted(&backend.Response{Text: "recovered", FinishReason: "stop"}).
		FailWith(backend.MarkTransient(errors.New("rate limited")))
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.MaxRetries = 2
		o.RetryBaseDelay = time.Millisecond
	})

	outcome, err := c.Run(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, ReasonCompleted, outcome.Reason)
	assert.Equal(t, "recovered", outcome.FinalText)
	assert.Equal(t, 2, be.Calls())
}

func TestRunFatalOnPermanentBackendFailure(t *testing.T) {
	ws := t.TempDir()
	be := backend.NewScripted().FailWith(errors.New("invalid api key"))
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.RetryBaseDelay = time.Millisecond
	})

	outcome, err := c.Run(context.Background(), "", "hello")
	require.Error(t, err)
	assert.Equal(t, ReasonFatalError, outcome.Reason)
	assert.Equal(t, 1, be.Calls(), "permanent failures must not be retried")
}

func TestRunPersistsTranscriptAcrossRuns(t *testing.T) {
	ws := t.TempDir()
	store := session.NewInMemoryStore()
	be := backend.NewScripted(
		&backend.Response{Text: "first answer", FinishReason: "stop"},
		&backend.Response{Text: "second answer", FinishReason: "stop"},
	)
	c := New(newTestRegistry(t), be, ws, func(o *Options) {
		o.Store = store
	})

	first, err := c.Run(context.Background(), "", "one")
	require.NoError(t, err)

	_, err = c.Run(context.Background(), first.SessionID, "two")
	require.NoError(t, err)

	reqs := be.Requests()
	require.Len(t, reqs, 2)
	// Second run carries the first exchange as history.
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, "one", reqs[1].Messages[0].Text)
	assert.Equal(t, "first answer", reqs[1].Messages[1].Text)
	assert.Equal(t, "two", reqs[1].Messages[2].Text)
}

func TestPathsOverlap(t *testing.T) {
	assert.True(t, pathsOverlap("/ws/a.txt", "/ws/a.txt"))
	assert.True(t, pathsOverlap("/ws", "/ws/a.txt"))
	assert.True(t, pathsOverlap("/ws/sub/a.txt", "/ws/sub"))
	assert.False(t, pathsOverlap("/ws/a.txt", "/ws/b.txt"))
	assert.False(t, pathsOverlap("/ws/ab", "/ws/a"))
}

func TestDisjointLocations(t *testing.T) {
	assert.True(t, disjointLocations([][]string{{"/ws/a"}, {"/ws/b"}}))
	assert.False(t, disjointLocations([][]string{{"/ws/a"}, {"/ws/a/nested"}}))
	assert.True(t, disjointLocations([][]string{{"/ws/a", "/ws/b"}, {"/ws/c"}}))
	assert.False(t, disjointLocations([][]string{{"/ws/a", "/ws/b"}, {"/ws/c", "/ws/b"}}))
}

func TestBackoffDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, maxRetryDelay)
	}
}
