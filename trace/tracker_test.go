package trace

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker(0)

	require.NoError(t, tr.Start("op-1", "session-a", 5))
	assert.Error(t, tr.Start("op-1", "session-a", 5), "duplicate start must fail")

	assert.Equal(t, 1, tr.BeginTurn("op-1"))
	assert.Equal(t, 2, tr.BeginTurn("op-1"))

	tr.RecordToolCall("op-1", ToolCallRecord{Name: "write_file", Duration: time.Millisecond, Success: true})
	tr.SetVariable("op-1", "files_written", 1)

	snap, ok := tr.Snapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, 2, snap.CurrentTurn)
	assert.Len(t, snap.ToolCalls, 1)
	assert.False(t, snap.Completed)

	v, ok := tr.Variable("op-1", "files_written")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	tr.Complete("op-1", "completed")

	snap, ok = tr.Snapshot("op-1")
	require.True(t, ok)
	assert.True(t, snap.Completed)
	assert.Equal(t, "completed", snap.Outcome)
	assert.Empty(t, tr.ActiveSnapshot())
}

func TestBeginTurnClampsAtCeiling(t *testing.T) {
	tr := NewTracker(0)
	require.NoError(t, tr.Start("op-1", "", 2))

	assert.Equal(t, 1, tr.BeginTurn("op-1"))
	assert.Equal(t, 2, tr.BeginTurn("op-1"))
	assert.Equal(t, 2, tr.BeginTurn("op-1"), "turn must never exceed the ceiling")

	assert.Zero(t, tr.BeginTurn("unknown"))
}

func TestRetentionEvictsOldest(t *testing.T) {
	tr := NewTracker(2)

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("op-%d", i)
		require.NoError(t, tr.Start(id, "", 1))
		tr.Complete(id, "completed")
	}

	history := tr.History()
	require.Len(t, history, 2)
	assert.Equal(t, "op-2", history[0].OperationID)
	assert.Equal(t, "op-3", history[1].OperationID)

	_, ok := tr.Snapshot("op-0")
	assert.False(t, ok, "evicted operation must be gone")
}

func TestRetentionEvictsAgedOut(t *testing.T) {
	tr := NewTracker(0)
	clock := time.Now()
	tr.now = func() time.Time { return clock }

	require.NoError(t, tr.Start("op-old", "", 1))
	tr.Complete("op-old", "completed")

	clock = clock.Add(DefaultMaxAge + time.Minute)
	require.NoError(t, tr.Start("op-new", "", 1))
	tr.Complete("op-new", "completed")

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, "op-new", history[0].OperationID)
}

func TestAddUsageAccumulates(t *testing.T) {
	tr := NewTracker(0)
	require.NoError(t, tr.Start("op-1", "", 3))

	tr.AddUsage("op-1", 100, 20)
	tr.AddUsage("op-1", 50, 10)
	tr.AddUsage("unknown", 1, 1)

	snap, _ := tr.Snapshot("op-1")
	assert.Equal(t, 150, snap.PromptTokens)
	assert.Equal(t, 30, snap.CompletionTokens)
	assert.Equal(t, 180, Meter(snap).TotalTokens)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker(0)
	require.NoError(t, tr.Start("op-1", "", 3))
	tr.RecordToolCall("op-1", ToolCallRecord{Name: "glob", Success: true})

	snap, _ := tr.Snapshot("op-1")
	snap.ToolCalls[0].Name = "mutated"
	snap.Variables["x"] = 1

	fresh, _ := tr.Snapshot("op-1")
	assert.Equal(t, "glob", fresh.ToolCalls[0].Name)
	assert.Empty(t, fresh.Variables)
}

func TestTrackerConcurrentOperations(t *testing.T) {
	tr := NewTracker(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("op-%d", i)
			require.NoError(t, tr.Start(id, "", 10))
			for turn := 0; turn < 5; turn++ {
				tr.BeginTurn(id)
				tr.RecordToolCall(id, ToolCallRecord{Name: "read_file", Success: true})
			}
			tr.Complete(id, "completed")
		}(i)
	}
	wg.Wait()

	history := tr.History()
	require.Len(t, history, 20)
	for _, s := range history {
		assert.Equal(t, 5, s.CurrentTurn)
		assert.Len(t, s.ToolCalls, 5)
	}
}

func TestMeterAndSummarize(t *testing.T) {
	tr := NewTracker(0)
	require.NoError(t, tr.Start("op-1", "refactor", 4))
	tr.BeginTurn("op-1")
	tr.RecordToolCall("op-1", ToolCallRecord{Name: "read_file", Duration: 5 * time.Millisecond, Success: true})
	tr.RecordToolCall("op-1", ToolCallRecord{Name: "edit_file", Duration: 40 * time.Millisecond, Success: false, Error: "no match"})
	tr.Complete("op-1", "completed")

	snap, _ := tr.Snapshot("op-1")

	m := Meter(snap)
	assert.Equal(t, 2, m.ToolCalls)
	assert.Equal(t, 1, m.Failures)
	assert.Equal(t, 45*time.Millisecond, m.TotalTime)
	assert.Equal(t, "edit_file", m.SlowestTool)

	text := Summarize(snap)
	assert.Contains(t, text, "op-1")
	assert.Contains(t, text, "refactor")
	assert.Contains(t, text, "turn 1/4")
	assert.Contains(t, text, "edit_file")
	assert.Contains(t, text, "no match")

	data, err := ExportJSON(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation_id": "op-1"`)
}
