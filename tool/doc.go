// Package tool implements the capability subsystem: schema-validated
// descriptors, single-use invocations bound to a workspace, a frozen
// name-keyed registry, and the immutable result envelope handed back into
// the conversation.
//
// A capability is described once (Descriptor), advertised to the backend via
// its Declaration, and executed through an Invocation constructed from
// validated parameters. Execution never lets errors or panics escape the
// Invocation boundary; every failure is converted into a Result carrying a
// typed *Error so the backend can decide whether to retry, rephrase or stop.
package tool
