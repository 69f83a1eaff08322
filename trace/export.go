package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metering aggregates usage across an operation's tool calls and backend
// token reports.
type Metering struct {
	ToolCalls   int           `json:"tool_calls"`
	Failures    int           `json:"failures"`
	TotalTime   time.Duration `json:"total_time"`
	SlowestTool string        `json:"slowest_tool,omitempty"`
	SlowestTime time.Duration `json:"slowest_time,omitempty"`
	TotalTokens int           `json:"total_tokens,omitempty"`
}

// Meter computes metering figures for a state snapshot.
func Meter(s *State) Metering {
	m := Metering{
		ToolCalls:   len(s.ToolCalls),
		TotalTokens: s.PromptTokens + s.CompletionTokens,
	}
	for _, tc := range s.ToolCalls {
		if !tc.Success {
			m.Failures++
		}
		m.TotalTime += tc.Duration
		if tc.Duration > m.SlowestTime {
			m.SlowestTime = tc.Duration
			m.SlowestTool = tc.Name
		}
	}
	return m
}

// ExportJSON renders a state snapshot as indented JSON.
func ExportJSON(s *State) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Summarize renders a human-readable digest of one operation.
func Summarize(s *State) string {
	var b strings.Builder

	status := "running"
	if s.Completed {
		status = s.Outcome
		if status == "" {
			status = "completed"
		}
	}
	fmt.Fprintf(&b, "operation %s [%s]", s.OperationID, status)
	if s.Label != "" {
		fmt.Fprintf(&b, " (%s)", s.Label)
	}
	fmt.Fprintf(&b, "\n  turn %d/%d", s.CurrentTurn, s.TotalTurns)

	m := Meter(s)
	fmt.Fprintf(&b, "\n  tool calls: %d (%d failed), tool time %s", m.ToolCalls, m.Failures, m.TotalTime.Round(time.Millisecond))
	if m.SlowestTool != "" {
		fmt.Fprintf(&b, ", slowest %s (%s)", m.SlowestTool, m.SlowestTime.Round(time.Millisecond))
	}
	if m.TotalTokens > 0 {
		fmt.Fprintf(&b, "\n  tokens: %d (%d prompt, %d completion)", m.TotalTokens, s.PromptTokens, s.CompletionTokens)
	}

	for _, tc := range s.ToolCalls {
		mark := "ok"
		if !tc.Success {
			mark = "err"
		}
		fmt.Fprintf(&b, "\n  - %-12s %-3s %s", tc.Name, mark, tc.Duration.Round(time.Millisecond))
		if tc.Error != "" {
			fmt.Fprintf(&b, " (%s)", tc.Error)
		}
	}

	return b.String()
}
