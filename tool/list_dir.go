package tool

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// NewListDir declares the list_dir capability.
func NewListDir() *FuncDescriptor {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list, relative to the workspace root",
				"default":     ".",
			},
		},
	}

	return NewFuncDescriptor(
		"list_dir",
		"List Directory",
		"Lists the entries of a workspace directory; directories carry a trailing slash.",
		schema,
		func(workspaceRoot string, params Params) (Invocation, error) {
			abs, perr := ResolvePath(workspaceRoot, params.String("path"))
			if perr != nil {
				return nil, perr
			}

			return &InvocationFunc{
				Desc:  fmt.Sprintf("list %s", abs),
				Paths: []string{abs},
				Run: func(ctx context.Context, progress ProgressFunc) Result {
					entries, err := os.ReadDir(abs)
					if err != nil {
						return FailErr(classifyFSError(err, abs))
					}
					names := make([]string, 0, len(entries))
					for _, e := range entries {
						name := e.Name()
						if e.IsDir() {
							name += "/"
						}
						names = append(names, name)
					}
					sort.Strings(names)
					return Text(
						strings.Join(names, "\n"),
						fmt.Sprintf("Listed %s (%d entries)", abs, len(names)),
					)
				},
			}, nil
		},
	)
}
