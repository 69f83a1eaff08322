package tool

import (
	"context"

	"agentcore/internal/util"
)

// BindFunc constructs an Invocation from validated parameters. Construction
// must be pure; all I/O belongs in the returned Invocation's Execute.
type BindFunc func(workspaceRoot string, params Params) (Invocation, error)

// FuncDescriptor is a generic adapter that exposes a schema plus a bind
// function as a Descriptor. It holds no mutable state after construction and
// is safe for concurrent use.
type FuncDescriptor struct {
	name        string
	displayName string
	description string
	schema      map[string]any
	bind        BindFunc
}

// NewFuncDescriptor constructs a FuncDescriptor from explicit schema and factory.
func NewFuncDescriptor(name, displayName, description string, schema map[string]any, bind BindFunc) *FuncDescriptor {
	return &FuncDescriptor{
		name:        name,
		displayName: displayName,
		description: description,
		schema:      schema,
		bind:        bind,
	}
}

// Name returns the unique capability name used in declarations and routing.
func (d *FuncDescriptor) Name() string { return d.name }

// DisplayName returns the human-facing capability name.
func (d *FuncDescriptor) DisplayName() string { return d.displayName }

// Description returns the natural language description exposed to backends.
func (d *FuncDescriptor) Description() string { return d.description }

// Schema returns the JSON schema describing expected arguments.
func (d *FuncDescriptor) Schema() map[string]any { return d.schema }

// NewInvocation validates and converts raw arguments then binds them.
// Validation failures return a *Error of kind ErrInvalidParameters and no
// Invocation is constructed.
func (d *FuncDescriptor) NewInvocation(workspaceRoot string, raw map[string]any) (Invocation, error) {
	converted, err := util.ConvertParams(raw, d.schema)
	if err != nil {
		return nil, NewError(ErrInvalidParameters, "%s: %v", d.name, err)
	}
	return d.bind(workspaceRoot, Params(converted))
}

// InvocationFunc adapts a plain function (plus static metadata) into an
// Invocation, for capabilities whose execution is a single step.
type InvocationFunc struct {
	Desc  string
	Paths []string
	Run   func(ctx context.Context, progress ProgressFunc) Result
}

// Description implements Invocation.
func (i *InvocationFunc) Description() string { return i.Desc }

// Locations implements Invocation.
func (i *InvocationFunc) Locations() []string { return i.Paths }

// Execute checks cancellation up front then delegates to the wrapped function.
func (i *InvocationFunc) Execute(ctx context.Context, progress ProgressFunc) Result {
	if ctx.Err() != nil {
		return Cancelled()
	}
	return i.Run(ctx, progress)
}
