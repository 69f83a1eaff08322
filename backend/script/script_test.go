package script

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/backend"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based script backend tests require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "decider.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestScriptBackendRoundTrip(t *testing.T) {
	path := writeScript(t, `
while read line; do
  echo '{"text":"hello from script","finish_reason":"stop"}'
done
`)

	be, err := New(func(o *Options) {
		o.Command = "/bin/sh"
		o.Args = []string{path}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	resp, err := be.Next(context.Background(), backend.Request{
		Messages: []backend.Message{{Role: backend.RoleUser, Text: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from script", resp.Text)
	assert.True(t, resp.Final())

	// The process stays alive across calls.
	resp, err = be.Next(context.Background(), backend.Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from script", resp.Text)
}

func TestScriptBackendToolCalls(t *testing.T) {
	path := writeScript(t, `
read line
echo '{"tool_calls":[{"id":"c1","name":"glob","arguments":{"pattern":"**/*.go"}}]}'
`)

	be, err := New(func(o *Options) {
		o.Command = "/bin/sh"
		o.Args = []string{path}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	resp, err := be.Next(context.Background(), backend.Request{}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "c1", resp.ToolCalls[0].ID)
	assert.Equal(t, "glob", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"pattern":"**/*.go"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.False(t, resp.Final())
}

func TestScriptBackendScriptError(t *testing.T) {
	path := writeScript(t, `
read line
echo '{"error":"cannot decide"}'
`)

	be, err := New(func(o *Options) {
		o.Command = "/bin/sh"
		o.Args = []string{path}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	_, err = be.Next(context.Background(), backend.Request{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot decide")
	assert.False(t, backend.IsTransient(err))
}

func TestScriptBackendDeadProcessIsTransient(t *testing.T) {
	path := writeScript(t, `
read line
exit 1
`)

	be, err := New(func(o *Options) {
		o.Command = "/bin/sh"
		o.Args = []string{path}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	_, err = be.Next(context.Background(), backend.Request{}, nil)
	require.Error(t, err)
	assert.True(t, backend.IsTransient(err), "a dead child should be retried with a restart")
}

func TestScriptBackendHonorsCancellation(t *testing.T) {
	path := writeScript(t, `
read line
sleep 60
`)

	be, err := New(func(o *Options) {
		o.Command = "/bin/sh"
		o.Args = []string{path}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = be.Next(ctx, backend.Request{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestScriptBackendRequiresCommand(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}
