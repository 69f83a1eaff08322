// Package trace records the live execution state of agent operations: which
// turn is running, which tool calls happened, and any variables the run has
// published. One process-wide Tracker serves concurrent operations; completed
// state is retained for inspection with a bounded history.
package trace
