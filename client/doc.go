// Package client drives the turn loop: it sends conversation history and
// tool declarations to a backend, dispatches the tool calls the backend
// requests, feeds results back in request order, and stops on a final
// answer, cancellation, a fatal error, or the hard turn ceiling.
package client
