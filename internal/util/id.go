package util

import "github.com/google/uuid"

// NewID generates a unique identifier for operations, tool calls and sessions.
func NewID() string { return uuid.NewString() }
