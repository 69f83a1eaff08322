package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// NewReadFile declares the read_file capability with optional line windowing.
func NewReadFile() *FuncDescriptor {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to read, relative to the workspace root",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "1-based line to start reading from",
				"default":     1,
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to return (0 = all)",
				"default":     0,
			},
		},
		"required": []string{"path"},
	}

	return NewFuncDescriptor(
		"read_file",
		"Read File",
		"Reads a file from the workspace, optionally windowed by line offset and limit.",
		schema,
		func(workspaceRoot string, params Params) (Invocation, error) {
			abs, perr := ResolvePath(workspaceRoot, params.String("path"))
			if perr != nil {
				return nil, perr
			}
			offset := params.Int("offset")
			limit := params.Int("limit")
			if offset < 1 {
				offset = 1
			}

			return &InvocationFunc{
				Desc:  fmt.Sprintf("read %s", abs),
				Paths: []string{abs},
				Run: func(ctx context.Context, progress ProgressFunc) Result {
					data, err := os.ReadFile(abs)
					if err != nil {
						return FailErr(classifyFSError(err, abs))
					}
					lines := strings.Split(string(data), "\n")
					total := len(lines)
					if offset > total {
						return Fail(ErrInvalidParameters, "offset %d beyond end of file (%d lines)", offset, total)
					}
					window := lines[offset-1:]
					if limit > 0 && limit < len(window) {
						window = window[:limit]
					}
					return Text(
						strings.Join(window, "\n"),
						fmt.Sprintf("Read %s (%d of %d lines)", abs, len(window), total),
					)
				},
			}, nil
		},
	)
}
