package tool

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath binds a user or backend supplied path to the workspace root.
// Relative paths are joined onto the root; absolute paths must already live
// inside it. Escapes resolve to ErrPermissionDenied so a misbehaving backend
// cannot reach outside the bound workspace.
func ResolvePath(workspaceRoot, path string) (string, *Error) {
	if path == "" {
		return "", NewError(ErrInvalidParameters, "path must not be empty")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workspaceRoot, abs)
	}
	abs = filepath.Clean(abs)

	root := filepath.Clean(workspaceRoot)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewError(ErrPermissionDenied, "path %s is outside the workspace", path)
	}
	return abs, nil
}

// classifyFSError maps filesystem errors onto the capability error taxonomy.
func classifyFSError(err error, path string) *Error {
	switch {
	case os.IsNotExist(err):
		return NewError(ErrFileNotFound, "file not found: %s", path)
	case os.IsPermission(err):
		return NewError(ErrPermissionDenied, "permission denied: %s", path)
	default:
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return NewError(ErrExecution, "%s %s: %v", pathErr.Op, path, pathErr.Err)
		}
		return NewError(ErrExecution, "%v", err)
	}
}
