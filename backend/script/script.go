// Package script implements the backend contract by delegating each turn to
// an external decision process. The process is spawned once and spoken to
// over stdin/stdout with line-delimited JSON: one request object per line in,
// one response object per line out. Stderr is drained into the log. This lets
// deterministic replay scripts or non-Go policies drive the turn loop.
package script

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"agentcore/backend"
	"agentcore/logging"
)

// Options configures the script backend.
type Options struct {
	// Command is the executable to spawn; Args are passed verbatim.
	Command string
	Args    []string
	// Env overrides the child environment when non-empty.
	Env []string
	// Logger receives child stderr lines. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Backend drives an external process behind the generic backend.Backend
// interface. Safe for sequential use; calls are serialized internally.
type Backend struct {
	opts Options

	mu   sync.Mutex
	proc *process
}

// wireResponse is the single JSON object the script must print per request.
type wireResponse struct {
	Text      string `json:"text,omitempty"`
	ToolCalls []struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"tool_calls,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

// New creates a script backend. The process starts lazily on first Next.
func New(optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if strings.TrimSpace(opts.Command) == "" {
		return nil, errors.New("script backend: command is required")
	}
	return &Backend{opts: opts}, nil
}

// Next implements backend.Backend. A dead or misbehaving child is reported
// as a transient error so the turn loop restarts it on retry.
func (b *Backend) Next(ctx context.Context, req backend.Request, onDelta func(string)) (*backend.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	proc, err := b.ensureProcess()
	if err != nil {
		return nil, fmt.Errorf("script backend: %w", err)
	}

	if err := proc.send(req); err != nil {
		b.dropProcess()
		return nil, backend.MarkTransient(fmt.Errorf("script backend: write request: %w", err))
	}

	wire, err := proc.recv(ctx)
	if err != nil {
		b.dropProcess()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, backend.MarkTransient(fmt.Errorf("script backend: read response: %w", err))
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("script backend: script error: %s", wire.Error)
	}

	resp := &backend.Response{Text: wire.Text, FinishReason: wire.FinishReason}
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}
	if onDelta != nil && resp.Text != "" {
		onDelta(resp.Text)
	}
	for i, tc := range wire.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		args := "{}"
		if len(tc.Arguments) > 0 {
			args = string(tc.Arguments)
		}
		resp.ToolCalls = append(resp.ToolCalls, backend.ToolCall{
			ID:        id,
			Name:      tc.Name,
			Arguments: args,
		})
	}
	if len(resp.ToolCalls) > 0 && wire.FinishReason == "" {
		resp.FinishReason = "tool_calls"
	}
	return resp, nil
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name:          b.opts.Command,
		Provider:      "script",
		SupportsTools: true,
	}
}

// Close terminates the child process if running.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropProcess()
	return nil
}

func (b *Backend) ensureProcess() (*process, error) {
	if b.proc != nil {
		return b.proc, nil
	}
	proc, err := startProcess(b.opts)
	if err != nil {
		return nil, err
	}
	b.proc = proc
	return proc, nil
}

func (b *Backend) dropProcess() {
	if b.proc != nil {
		b.proc.close()
		b.proc = nil
	}
}

type process struct {
	closeOnce sync.Once

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	scanner *bufio.Scanner
	enc     *json.Encoder
}

func startProcess(opts Options) (*process, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, err
	}

	// Script logs must go to stderr only; stdout carries protocol frames.
	go func() {
		r := bufio.NewScanner(stderr)
		for r.Scan() {
			line := strings.TrimSpace(r.Text())
			if line != "" {
				opts.Logger.Debug("script backend stderr", "line", line)
			}
		}
	}()

	sc := bufio.NewScanner(stdout)
	// Allow reasonably large frames (tool schemas, long histories).
	sc.Buffer(make([]byte, 0, 64<<10), 2<<20)

	enc := json.NewEncoder(stdin)
	enc.SetEscapeHTML(false)

	return &process{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		scanner: sc,
		enc:     enc,
	}, nil
}

func (p *process) send(req backend.Request) error {
	return p.enc.Encode(req)
}

// recv reads one response frame, honoring ctx by killing the child on
// cancellation (the blocked read then unblocks with an error).
func (p *process) recv(ctx context.Context) (*wireResponse, error) {
	type scanResult struct {
		wire *wireResponse
		err  error
	}
	ch := make(chan scanResult, 1)

	go func() {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				ch <- scanResult{err: err}
				return
			}
			ch <- scanResult{err: io.EOF}
			return
		}
		line := strings.TrimSpace(p.scanner.Text())
		if line == "" {
			ch <- scanResult{err: errors.New("empty frame")}
			return
		}
		var wire wireResponse
		if err := json.Unmarshal([]byte(line), &wire); err != nil {
			ch <- scanResult{err: fmt.Errorf("invalid frame: %w", err)}
			return
		}
		ch <- scanResult{wire: &wire}
	}()

	select {
	case res := <-ch:
		return res.wire, res.err
	case <-ctx.Done():
		p.close()
		return nil, ctx.Err()
	}
}

func (p *process) close() {
	p.closeOnce.Do(func() {
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		if p.stdout != nil {
			_ = p.stdout.Close()
		}
		if p.stderr != nil {
			_ = p.stderr.Close()
		}
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
			_, _ = p.cmd.Process.Wait()
		}
	})
}
