// Package session persists conversation state across runs: the message
// transcript, file diffs produced by edits, and enough bookkeeping to resume
// a paused run. Two stores are provided, an in-memory one for tests and
// ephemeral use and a SQLite-backed one for durable history.
package session
