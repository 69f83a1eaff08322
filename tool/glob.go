package tool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"agentcore/internal/util"
)

// globArgs is the argument shape for the glob capability; its schema is
// derived by reflection.
type globArgs struct {
	Pattern string `json:"pattern" description:"Glob pattern relative to the workspace root; ** crosses directories"`
}

// NewGlob declares the glob capability: find workspace files matching a
// doublestar pattern ("**/*.go", "src/**/test_*.py").
func NewGlob() *FuncDescriptor {
	schema := util.CreateSchema(globArgs{})

	return NewFuncDescriptor(
		"glob",
		"Glob",
		"Finds files matching a glob pattern within the workspace.",
		schema,
		func(workspaceRoot string, params Params) (Invocation, error) {
			pattern := params.String("pattern")
			if !doublestar.ValidatePattern(pattern) {
				return nil, NewError(ErrInvalidParameters, "invalid glob pattern: %s", pattern)
			}

			return &InvocationFunc{
				Desc: fmt.Sprintf("glob %s in %s", pattern, workspaceRoot),
				// The whole workspace may be scanned, so the location set is
				// the root; this serializes glob against concurrent writes.
				Paths: []string{workspaceRoot},
				Run: func(ctx context.Context, progress ProgressFunc) Result {
					matches, err := doublestar.Glob(os.DirFS(workspaceRoot), pattern)
					if err != nil {
						return Fail(ErrExecution, "glob %s: %v", pattern, err)
					}
					sort.Strings(matches)
					return Text(
						strings.Join(matches, "\n"),
						fmt.Sprintf("Found %d matches for %s", len(matches), pattern),
					)
				},
			}, nil
		},
	)
}
