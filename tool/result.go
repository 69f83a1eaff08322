package tool

import "fmt"

// ErrorKind categorizes capability failures for uniform downstream handling.
type ErrorKind string

const (
	// ErrInvalidParameters marks caller-fault validation failures; never retried.
	ErrInvalidParameters ErrorKind = "invalid_parameters"
	// ErrFileNotFound marks environment mismatches surfaced for backend-driven retry.
	ErrFileNotFound ErrorKind = "file_not_found"
	// ErrPermissionDenied marks access violations, including workspace escapes.
	ErrPermissionDenied ErrorKind = "permission_denied"
	// ErrExecution marks uncaught internal failures; logged with context, non-fatal.
	ErrExecution ErrorKind = "execution_error"
	// ErrBackendUnavailable marks transient backend failures after retries are exhausted.
	ErrBackendUnavailable ErrorKind = "backend_unavailable"
	// ErrCancelled marks cooperative cancellation; always takes priority.
	ErrCancelled ErrorKind = "cancelled"
	// ErrDuplicateName marks a registry construction collision.
	ErrDuplicateName ErrorKind = "duplicate_name"
	// ErrNotFound marks a dispatch-time lookup miss.
	ErrNotFound ErrorKind = "not_found"
)

// Error is the typed failure attached to a Result or returned from
// construction-time operations (registry, parameter validation).
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates a typed Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result is the immutable outcome envelope of one invocation attempt.
// Content is fed back to the model; Display is shown to the user. Err is nil
// on success. Once built a Result is never mutated.
type Result struct {
	Content string `json:"modelContent"`
	Display string `json:"userDisplay"`
	Err     *Error `json:"error,omitempty"`
}

// Text builds a successful Result. An empty display falls back to content.
func Text(content, display string) Result {
	if display == "" {
		display = content
	}
	return Result{Content: content, Display: display}
}

// Fail builds a failed Result; content and display both carry the message so
// the backend and the user see the same failure.
func Fail(kind ErrorKind, format string, args ...any) Result {
	e := NewError(kind, format, args...)
	return Result{Content: e.Message, Display: e.Message, Err: e}
}

// FailErr wraps an existing typed Error into a Result.
func FailErr(e *Error) Result {
	return Result{Content: e.Message, Display: e.Message, Err: e}
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool { return r.Err != nil }

// Cancelled builds the canonical cancellation Result.
func Cancelled() Result {
	return Fail(ErrCancelled, "operation cancelled")
}
