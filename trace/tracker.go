package trace

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultMaxRetained bounds how many completed operations the tracker keeps.
const DefaultMaxRetained = 64

// DefaultMaxAge bounds how long a completed operation stays retained.
const DefaultMaxAge = time.Hour

// ToolCallRecord captures one tool dispatch within an operation.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Args      map[string]any `json:"args,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// State is a snapshot of one operation's execution.
type State struct {
	OperationID string           `json:"operation_id"`
	Label       string           `json:"label,omitempty"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time,omitempty"`
	CurrentTurn int              `json:"current_turn"`
	TotalTurns  int              `json:"total_turns"`
	ToolCalls   []ToolCallRecord `json:"tool_calls,omitempty"`
	Variables   map[string]any   `json:"variables,omitempty"`
	Completed   bool             `json:"completed"`
	Outcome     string           `json:"outcome,omitempty"`

	// Token counters accumulated from backend usage reports.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

func (s *State) clone() *State {
	out := *s
	out.ToolCalls = append([]ToolCallRecord(nil), s.ToolCalls...)
	out.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	return &out
}

// Tracker tracks execution state for concurrent operations. All methods are
// safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	active      map[string]*State
	completed   []*State
	maxRetained int
	maxAge      time.Duration
	now         func() time.Time
}

// NewTracker creates a tracker retaining up to maxRetained completed
// operations; zero or negative means DefaultMaxRetained.
func NewTracker(maxRetained int) *Tracker {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}
	return &Tracker{
		active:      make(map[string]*State),
		maxRetained: maxRetained,
		maxAge:      DefaultMaxAge,
		now:         time.Now,
	}
}

// Start registers a new operation. totalTurns is the hard turn ceiling; label
// is free-form (script path, session name).
func (t *Tracker) Start(operationID, label string, totalTurns int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.active[operationID]; exists {
		return fmt.Errorf("operation %s already active", operationID)
	}
	t.active[operationID] = &State{
		OperationID: operationID,
		Label:       label,
		StartTime:   t.now(),
		TotalTurns:  totalTurns,
		Variables:   make(map[string]any),
	}
	return nil
}

// BeginTurn advances the operation's current turn, clamped to TotalTurns.
// Returns the turn number now running (1-based).
func (t *Tracker) BeginTurn(operationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.active[operationID]
	if !ok {
		return 0
	}
	if s.CurrentTurn < s.TotalTurns {
		s.CurrentTurn++
	}
	return s.CurrentTurn
}

// RecordToolCall appends one tool dispatch record to the operation.
func (t *Tracker) RecordToolCall(operationID string, rec ToolCallRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.active[operationID]; ok {
		if rec.Timestamp.IsZero() {
			rec.Timestamp = t.now()
		}
		s.ToolCalls = append(s.ToolCalls, rec)
	}
}

// SetVariable publishes a named value on the operation.
func (t *Tracker) SetVariable(operationID, name string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.active[operationID]; ok {
		s.Variables[name] = value
	}
}

// AddUsage accumulates backend token usage onto the operation.
func (t *Tracker) AddUsage(operationID string, promptTokens, completionTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.active[operationID]; ok {
		s.PromptTokens += promptTokens
		s.CompletionTokens += completionTokens
	}
}

// Variable reads a published value.
func (t *Tracker) Variable(operationID, name string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.active[operationID]
	if !ok {
		return nil, false
	}
	v, ok := s.Variables[name]
	return v, ok
}

// Complete moves the operation from active to the retained history,
// evicting the oldest completed entry beyond the retention bound.
func (t *Tracker) Complete(operationID, outcome string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.active[operationID]
	if !ok {
		return
	}
	delete(t.active, operationID)

	s.Completed = true
	s.Outcome = outcome
	s.EndTime = t.now()
	t.completed = append(t.completed, s)
	if len(t.completed) > t.maxRetained {
		t.completed = t.completed[len(t.completed)-t.maxRetained:]
	}

	cutoff := t.now().Add(-t.maxAge)
	for len(t.completed) > 0 && t.completed[0].EndTime.Before(cutoff) {
		t.completed = t.completed[1:]
	}
}

// Snapshot returns a copy of one operation's state, active or retained.
func (t *Tracker) Snapshot(operationID string) (*State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.active[operationID]; ok {
		return s.clone(), true
	}
	for i := len(t.completed) - 1; i >= 0; i-- {
		if t.completed[i].OperationID == operationID {
			return t.completed[i].clone(), true
		}
	}
	return nil, false
}

// ActiveSnapshot returns copies of all in-flight operations sorted by id.
func (t *Tracker) ActiveSnapshot() []*State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*State, 0, len(t.active))
	for _, s := range t.active {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OperationID < out[j].OperationID })
	return out
}

// History returns copies of the retained completed operations, oldest first.
func (t *Tracker) History() []*State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*State, 0, len(t.completed))
	for _, s := range t.completed {
		out = append(out, s.clone())
	}
	return out
}
