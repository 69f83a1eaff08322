package tool

import "context"

// ProgressFunc surfaces best-effort partial output while an invocation runs.
// Implementations must tolerate a nil callback; progress is never required
// for correctness.
type ProgressFunc func(update string)

// Invocation is one bound, executable unit produced from validated
// parameters. It is single-use per execution attempt, even under retry.
//
// Execute is the only place side effects occur. It must check ctx before
// starting and at every natural suspension point (file access, subprocess
// output draining, network calls), and must never panic or return an error
// across its boundary: all failures convert to Result.Err.
type Invocation interface {
	// Description returns a short human-readable summary of what this
	// specific invocation will do, rendered before and during execution.
	Description() string

	// Locations returns the absolute filesystem paths this invocation will
	// touch, computable without executing. The dispatcher uses location sets
	// for concurrency grouping and confirmation; an empty set means the
	// footprint is unknown and the invocation is serialized.
	Locations() []string

	// Execute runs the invocation. progress may be nil.
	Execute(ctx context.Context, progress ProgressFunc) Result
}

// Descriptor declares a capability: its identity, parameter schema and the
// factory that turns validated parameters into an Invocation. Descriptors
// are immutable once registered.
type Descriptor interface {
	// Name returns the unique identifier advertised to the backend
	// (snake_case by convention).
	Name() string

	// DisplayName returns the human-facing capability name.
	DisplayName() string

	// Description returns the capability description provided to the backend.
	Description() string

	// Schema returns the JSON-schema parameter declaration: an "object"
	// schema with properties, required fields, enums, defaults and nested
	// array item types.
	Schema() map[string]any

	// NewInvocation validates raw arguments against Schema and constructs a
	// bound Invocation. Construction is pure: no I/O happens here. A
	// validation failure returns a *Error of kind ErrInvalidParameters and
	// no Invocation is ever built from unvalidated input. Unknown fields in
	// raw are ignored since backends may emit a superset.
	NewInvocation(workspaceRoot string, raw map[string]any) (Invocation, error)
}

// Declaration is the provider-neutral advertisement payload for one
// capability, serialized by each backend into its own schema format.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Params is a validated, converted parameter record. Values have already
// passed schema validation; the typed getters exist for ergonomic access and
// apply the zero value when a declared optional field is absent.
type Params map[string]any

// String returns the string value for key, or "" when absent.
func (p Params) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// Bool returns the boolean value for key, or false when absent.
func (p Params) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Int returns the integer value for key handling JSON float64 decoding.
func (p Params) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float returns the numeric value for key, or 0 when absent.
func (p Params) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// StringSlice returns the string list for key tolerating []any decoding.
func (p Params) StringSlice(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Has reports whether the key was supplied or defaulted.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
