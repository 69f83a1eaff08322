package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"agentcore/edit"
)

// highFailureThreshold is the failure ratio at which the monitor's
// recommendations get attached to edit results.
const highFailureThreshold = 0.5

// NewEditFile declares the edit_file capability: replace old text with new
// text in one file. Exact matching is attempted first; a single non-unique
// or missing match falls back to approximate (fuzzy) matching, with every
// outcome reported to the monitor.
func NewEditFile(monitor *edit.Monitor) *FuncDescriptor {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path of the file to edit, relative to the workspace root",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "The exact text to find and replace",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "The replacement text (must differ from old_string)",
			},
			"replace_all": map[string]any{
				"type":        "boolean",
				"description": "Replace every exact occurrence instead of requiring uniqueness",
				"default":     false,
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	}

	return NewFuncDescriptor(
		"edit_file",
		"Edit File",
		"Performs a string replacement in a file. old_string must be unique unless replace_all is set; near-miss text is matched approximately.",
		schema,
		func(workspaceRoot string, params Params) (Invocation, error) {
			abs, perr := ResolvePath(workspaceRoot, params.String("path"))
			if perr != nil {
				return nil, perr
			}
			oldStr := params.String("old_string")
			newStr := params.String("new_string")
			if oldStr == "" {
				return nil, NewError(ErrInvalidParameters, "old_string must not be empty")
			}
			if oldStr == newStr {
				return nil, NewError(ErrInvalidParameters, "new_string must differ from old_string")
			}

			inv := &editFileInvocation{
				path:       abs,
				oldStr:     oldStr,
				newStr:     newStr,
				replaceAll: params.Bool("replace_all"),
				monitor:    monitor,
			}
			return inv, nil
		},
	)
}

// editFileInvocation is single-use: one execution attempt per instance.
type editFileInvocation struct {
	path       string
	oldStr     string
	newStr     string
	replaceAll bool
	monitor    *edit.Monitor
}

func (i *editFileInvocation) Description() string {
	return fmt.Sprintf("edit %s (replace %d chars)", i.path, len(i.oldStr))
}

func (i *editFileInvocation) Locations() []string { return []string{i.path} }

func (i *editFileInvocation) Execute(ctx context.Context, progress ProgressFunc) Result {
	if ctx.Err() != nil {
		return Cancelled()
	}

	data, err := os.ReadFile(i.path)
	if err != nil {
		return FailErr(classifyFSError(err, i.path))
	}
	content := string(data)

	if ctx.Err() != nil {
		return Cancelled()
	}

	if i.replaceAll {
		return i.executeReplaceAll(ctx, content)
	}

	switch occurrences := edit.CountOccurrences(content, i.oldStr); {
	case occurrences == 1:
		updated := strings.Replace(content, i.oldStr, i.newStr, 1)
		if res, failed := i.writeBack(ctx, updated); failed {
			return res
		}
		i.monitor.RecordSuccess(i.path)
		return Text(
			fmt.Sprintf("replaced 1 occurrence in %s", i.path),
			fmt.Sprintf("Edited %s", i.path),
		)
	case occurrences > 1:
		return i.fail("not_unique",
			"old_string matched %d times in %s; provide more context or set replace_all", occurrences, i.path)
	default:
		return i.executeFuzzy(ctx, content, progress)
	}
}

// executeFuzzy runs the approximate-match fallback with an explicit attempt
// cap per path; exceeding the cap is an execution error, never a silent drop.
func (i *editFileInvocation) executeFuzzy(ctx context.Context, content string, progress ProgressFunc) Result {
	if attempts := i.monitor.RecordFuzzyAttempt(i.path); attempts > edit.MaxFuzzyAttempts {
		return i.fail("fuzzy_exhausted",
			"fuzzy matching attempts exhausted for %s (%d); rewrite the file instead", i.path, attempts)
	}

	if progress != nil {
		progress(fmt.Sprintf("no exact match in %s, trying approximate match", i.path))
	}

	updated, similarity, err := edit.FuzzyReplace(content, i.oldStr, i.newStr)
	if err != nil {
		reason := "no_match"
		if errors.Is(err, edit.ErrNoMatch) && similarity > 0 {
			reason = "fuzzy_below_threshold"
		}
		return i.fail(reason, "old_string not found in %s (closest match %.0f%%)", i.path, similarity*100)
	}

	if ctx.Err() != nil {
		return Cancelled()
	}
	if res, failed := i.writeBack(ctx, updated); failed {
		return res
	}
	i.monitor.RecordFuzzyMatchSuccess(i.path, similarity)
	return Text(
		fmt.Sprintf("replaced approximately matched text in %s (similarity %.2f)", i.path, similarity),
		fmt.Sprintf("Edited %s (fuzzy match, %.0f%% similar)", i.path, similarity*100),
	)
}

func (i *editFileInvocation) executeReplaceAll(ctx context.Context, content string) Result {
	occurrences := edit.CountOccurrences(content, i.oldStr)
	if occurrences == 0 {
		return i.fail("no_match", "old_string not found in %s", i.path)
	}
	updated := strings.ReplaceAll(content, i.oldStr, i.newStr)
	if res, failed := i.writeBack(ctx, updated); failed {
		return res
	}
	i.monitor.RecordSuccess(i.path)
	return Text(
		fmt.Sprintf("replaced %d occurrences in %s", occurrences, i.path),
		fmt.Sprintf("Edited %s (%d replacements)", i.path, occurrences),
	)
}

// fail records exactly one monitor failure, then builds the result. When the
// path has a high rolling failure rate, recommendations ride along so the
// backend can adapt its next attempt.
func (i *editFileInvocation) fail(reason, format string, args ...any) Result {
	i.monitor.RecordFailure(i.path, reason)
	res := Fail(ErrExecution, format, args...)
	if i.monitor.HighFailureRate(i.path, highFailureThreshold) {
		if recs := i.monitor.Recommendations(i.path); len(recs) > 0 {
			res.Content = res.Content + "\nHints:\n- " + strings.Join(recs, "\n- ")
		}
	}
	return res
}

func (i *editFileInvocation) writeBack(ctx context.Context, updated string) (Result, bool) {
	if ctx.Err() != nil {
		return Cancelled(), true
	}
	if err := os.WriteFile(i.path, []byte(updated), 0o644); err != nil {
		return FailErr(classifyFSError(err, i.path)), true
	}
	return Result{}, false
}
