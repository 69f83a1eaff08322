package client

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentcore/backend"
	"agentcore/logging"
	"agentcore/tool"
	"agentcore/trace"
)

// dispatch executes one batch of tool calls and returns results in request
// order. Calls whose location sets are pairwise disjoint run concurrently;
// any overlap serializes the whole batch. Errors never escape: every failure
// becomes an error-flagged ToolReturn fed back to the backend.
func (c *Client) dispatch(ctx context.Context, opID string, calls []backend.ToolCall) []backend.ToolReturn {
	type prepared struct {
		call backend.ToolCall
		args map[string]any
		inv  tool.Invocation
		err  *tool.Error
	}

	preps := make([]prepared, len(calls))
	for i, call := range calls {
		preps[i].call = call

		var raw map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
				preps[i].err = tool.NewError(tool.ErrInvalidParameters, "malformed arguments for %s: %v", call.Name, err)
				continue
			}
		}
		preps[i].args = raw

		desc, err := c.registry.Get(call.Name)
		if err != nil {
			preps[i].err = tool.NewError(tool.ErrNotFound, "unknown tool: %s", call.Name)
			continue
		}

		inv, err := desc.NewInvocation(c.workspaceRoot, raw)
		if err != nil {
			preps[i].err = asToolError(err)
			continue
		}
		preps[i].inv = inv
	}

	// Decide execution mode from the constructed invocations only; failed
	// constructions never block concurrency. An empty location set means the
	// footprint is unknown, which forces serial execution.
	var locationSets [][]string
	unknownFootprint := false
	for _, p := range preps {
		if p.inv != nil {
			locs := p.inv.Locations()
			if len(locs) == 0 {
				unknownFootprint = true
			}
			locationSets = append(locationSets, locs)
		}
	}
	parallel := len(locationSets) > 1 && !unknownFootprint && disjointLocations(locationSets)

	results := make([]tool.Result, len(calls))
	execute := func(i int) {
		p := preps[i]
		start := time.Now()
		if p.err != nil {
			// Preparation failures are ledgered too; the tracker must show
			// every call the backend requested.
			results[i] = tool.FailErr(p.err)
			c.recordToolCall(opID, p.call.Name, p.args, time.Since(start), results[i])
			return
		}
		results[i] = c.executeInvocation(ctx, p.inv)
		c.recordToolCall(opID, p.call.Name, p.args, time.Since(start), results[i])
	}

	if parallel {
		var wg sync.WaitGroup
		for i := range preps {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				execute(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range preps {
			execute(i)
		}
	}

	returns := make([]backend.ToolReturn, len(calls))
	for i, res := range results {
		ret := backend.ToolReturn{ID: calls[i].ID, Name: calls[i].Name}
		if res.Failed() {
			// Content may carry extra guidance beyond the error message
			// (edit hints); keep it when present.
			body := res.Content
			if body == "" {
				body = res.Err.Message
			}
			ret.Content = fmt.Sprintf("%s: %s", res.Err.Kind, body)
			ret.IsError = true
		} else {
			ret.Content = res.Content
		}
		returns[i] = ret
	}
	return returns
}

// executeInvocation runs one invocation with panic recovery. A panicking
// tool must not take down the run.
func (c *Client) executeInvocation(ctx context.Context, inv tool.Invocation) (result tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Error("tool panic recovered", "description", inv.Description(), "panic", r)
			result = tool.Fail(tool.ErrExecution, "tool panicked: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return tool.Cancelled()
	}

	progress := func(update string) {
		c.opts.Logger.Debug("tool progress", "description", inv.Description(), "update", update)
	}
	return inv.Execute(ctx, progress)
}

func (c *Client) recordToolCall(opID, name string, args map[string]any, dur time.Duration, res tool.Result) {
	rec := trace.ToolCallRecord{
		Name:     name,
		Args:     args,
		Duration: dur,
		Success:  !res.Failed(),
	}
	if res.Failed() {
		rec.Error = res.Err.Message
	}
	c.opts.Tracker.RecordToolCall(opID, rec)

	if cl, ok := c.opts.Logger.(*logging.CoreLogger); ok {
		var err error
		if res.Failed() {
			err = res.Err
		}
		cl.LogToolCall(name, dur, rec.Success, err)
		return
	}
	c.opts.Logger.Debug("tool call",
		"tool", name,
		"duration", dur,
		"success", rec.Success,
	)
}

// disjointLocations reports whether every pair of location sets is disjoint,
// treating a path and anything under it as overlapping.
func disjointLocations(sets [][]string) bool {
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			for _, a := range sets[i] {
				for _, b := range sets[j] {
					if pathsOverlap(a, b) {
						return false
					}
				}
			}
		}
	}
	return true
}

func pathsOverlap(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(a, b+sep) || strings.HasPrefix(b, a+sep)
}

func asToolError(err error) *tool.Error {
	if terr, ok := err.(*tool.Error); ok {
		return terr
	}
	return tool.NewError(tool.ErrInvalidParameters, "%v", err)
}
