package session

import (
	"context"
	"time"

	"agentcore/internal/util"
)

// FileDiff records one file mutation attached to a transcript message.
type FileDiff struct {
	Path       string `json:"path"`
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
	IsNewFile  bool   `json:"is_new_file"`
}

// Message is one transcript entry.
type Message struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
	FileDiff  *FileDiff `json:"file_diff,omitempty"`
}

// Session is a persisted conversation.
type Session struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Messages            []Message `json:"messages"`
	Paused              bool      `json:"paused"`
	LastPrompt          string    `json:"last_prompt,omitempty"`
	LastPartialResponse string    `json:"last_partial_response,omitempty"`
}

// NewSession creates an empty session with a fresh id.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        util.NewID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message and bumps UpdatedAt.
func (s *Session) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	for i, m := range s.Messages {
		if m.FileDiff != nil {
			fd := *m.FileDiff
			out.Messages[i].FileDiff = &fd
		}
	}
	return &out
}

// Store abstracts session persistence.
type Store interface {
	// Get returns the session or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Session, error)
	// Put inserts or replaces the session.
	Put(ctx context.Context, s *Session) error
	// Delete removes the session; absent ids are not an error.
	Delete(ctx context.Context, id string) error
	// List returns all session ids, most recently updated first.
	List(ctx context.Context) ([]string, error)
}
