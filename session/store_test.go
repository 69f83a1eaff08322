package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *Session {
	s := NewSession()
	s.Append(Message{Text: "make it faster", IsUser: true})
	s.Append(Message{
		Text: "rewrote the loop",
		FileDiff: &FileDiff{
			Path:       "main.go",
			OldContent: "for {",
			NewContent: "for i := range items {",
		},
	})
	s.LastPrompt = "make it faster"
	return s
}

func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sess := sampleSession()
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	require.Len(t, got.Messages, 2)
	assert.True(t, got.Messages[0].IsUser)
	require.NotNil(t, got.Messages[1].FileDiff)
	assert.Equal(t, "main.go", got.Messages[1].FileDiff.Path)
	assert.Equal(t, "make it faster", got.LastPrompt)

	// Upsert: appended message survives a second Put.
	sess.Append(Message{Text: "anything else?", IsUser: true})
	sess.Paused = true
	require.NoError(t, store.Put(ctx, sess))

	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 3)
	assert.True(t, got.Paused)

	other := NewSession()
	other.UpdatedAt = time.Now().Add(time.Hour)
	require.NoError(t, store.Put(ctx, other))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, other.ID, ids[0], "most recently updated first")

	require.NoError(t, store.Delete(ctx, sess.ID))
	require.NoError(t, store.Delete(ctx, sess.ID), "deleting absent id is not an error")

	got, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemoryStore())
}

func TestInMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewInMemoryStore()
	sess := sampleSession()
	require.NoError(t, store.Put(context.Background(), sess))

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	got.Messages[0].Text = "mutated"

	fresh, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "make it faster", fresh.Messages[0].Text)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	runStoreSuite(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	sess := sampleSession()
	require.NoError(t, store.Put(context.Background(), sess))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Messages, 2)
}
