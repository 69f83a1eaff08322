// Package agentcore is a turn-based agent runtime: a backend (hosted API,
// on-device model, or external script) decides each turn, the runtime
// dispatches the tool calls it requests inside a bound workspace, and the
// loop continues until a final answer, cancellation, a fatal error, or the
// turn ceiling.
//
// The subpackages compose bottom-up:
//
//   - tool:    capability contract, registry and built-in file tools
//   - edit:    fuzzy matching and the edit failure monitor
//   - backend: the decision contract and its variants
//   - client:  the turn loop
//   - session: transcript persistence
//   - trace:   execution state tracking
//   - engine:  configuration-driven assembly
//
// Most callers only need engine.New with a config.Config.
package agentcore

// Version is the module version, set at release time.
const Version = "0.1.0"
