package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NewWriteFile declares the write_file capability: create or overwrite one
// file inside the workspace with the given content.
func NewWriteFile() *FuncDescriptor {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to write, relative to the workspace root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Full content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}

	return NewFuncDescriptor(
		"write_file",
		"Write File",
		"Writes content to a file, creating it (and parent directories) if needed or replacing it entirely.",
		schema,
		func(workspaceRoot string, params Params) (Invocation, error) {
			abs, perr := ResolvePath(workspaceRoot, params.String("path"))
			if perr != nil {
				return nil, perr
			}
			content := params.String("content")

			return &InvocationFunc{
				Desc:  fmt.Sprintf("write %d bytes to %s", len(content), abs),
				Paths: []string{abs},
				Run: func(ctx context.Context, progress ProgressFunc) Result {
					if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
						return FailErr(classifyFSError(err, abs))
					}
					if ctx.Err() != nil {
						return Cancelled()
					}
					_, statErr := os.Stat(abs)
					existed := statErr == nil
					if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
						return FailErr(classifyFSError(err, abs))
					}
					verb := "Created"
					if existed {
						verb = "Updated"
					}
					return Text(
						fmt.Sprintf("wrote %d bytes to %s", len(content), abs),
						fmt.Sprintf("%s %s (%d bytes)", verb, abs, len(content)),
					)
				},
			}, nil
		},
	)
}
