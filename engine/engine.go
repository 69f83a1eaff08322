// Package engine assembles the moving parts (tool registry, backend,
// session store, tracker) into a runnable whole, and rebuilds them
// atomically when the configuration changes. A registry and its client are
// created together and discarded together; in-flight runs keep the snapshot
// they started with.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	anthropicbe "agentcore/backend/anthropic"
	ollamabe "agentcore/backend/ollama"
	openaibe "agentcore/backend/openai"
	scriptbe "agentcore/backend/script"

	"agentcore/backend"
	"agentcore/client"
	"agentcore/config"
	"agentcore/edit"
	"agentcore/logging"
	"agentcore/session"
	"agentcore/tool"
	"agentcore/trace"
)

// Engine owns the current client snapshot and the process-wide state that
// survives reconfiguration: the edit failure monitor, the tracker and the
// session store.
type Engine struct {
	mu      sync.RWMutex
	cfg     *config.Config
	client  *client.Client
	store   session.Store
	tracker *trace.Tracker
	monitor *edit.Monitor
	logger  logging.Logger
}

// New creates an engine from an initial configuration.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	var store session.Store
	if cfg.SessionDB != "" {
		sqlStore, err := session.NewSQLiteStore(cfg.SessionDB)
		if err != nil {
			return nil, err
		}
		store = sqlStore
	} else {
		store = session.NewInMemoryStore()
	}

	e := &Engine{
		store:   store,
		tracker: trace.NewTracker(0),
		monitor: edit.NewMonitor(),
		logger:  logger,
	}
	if err := e.Configure(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure rebuilds registry, backend and client from cfg and swaps them in
// as one unit. The monitor, tracker and store carry over; runs started on
// the previous snapshot finish on it undisturbed.
func (e *Engine) Configure(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry, err := buildRegistry(e.monitor)
	if err != nil {
		return err
	}

	be, err := newBackend(cfg.Backend)
	if err != nil {
		return err
	}

	cl := client.New(registry, be, cfg.WorkspaceRoot, func(o *client.Options) {
		o.MaxTurns = cfg.MaxTurns
		o.Instructions = cfg.Instructions
		o.MaxRetries = cfg.Retry.MaxRetries
		if cfg.Retry.BaseDelay > 0 {
			o.RetryBaseDelay = cfg.Retry.BaseDelay.Std()
		}
		o.Store = e.store
		o.Tracker = e.tracker
		o.Logger = e.logger
	})

	e.mu.Lock()
	e.cfg = cfg
	e.client = cl
	e.mu.Unlock()

	e.logger.Info("engine configured",
		"backend", cfg.Backend.Kind,
		"workspace", cfg.WorkspaceRoot,
		"max_turns", cfg.MaxTurns,
		"tools", registry.Len(),
	)
	return nil
}

// Run executes a prompt on the current snapshot.
func (e *Engine) Run(ctx context.Context, sessionID, prompt string) (*client.Outcome, error) {
	e.mu.RLock()
	cl := e.client
	e.mu.RUnlock()
	return cl.Run(ctx, sessionID, prompt)
}

// Client returns the current client snapshot.
func (e *Engine) Client() *client.Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client
}

// Tracker exposes the process-wide execution tracker.
func (e *Engine) Tracker() *trace.Tracker { return e.tracker }

// Monitor exposes the process-wide edit failure monitor.
func (e *Engine) Monitor() *edit.Monitor { return e.monitor }

// Sessions exposes the session store.
func (e *Engine) Sessions() session.Store { return e.store }

// Close releases durable resources.
func (e *Engine) Close() error {
	if closer, ok := e.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// buildRegistry enumerates the built-in capability set. The returned
// registry is unfrozen; the client freezes it at construction.
func buildRegistry(monitor *edit.Monitor) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	descriptors := []tool.Descriptor{
		tool.NewReadFile(),
		tool.NewWriteFile(),
		tool.NewEditFile(monitor),
		tool.NewListDir(),
		tool.NewGlob(),
	}
	for _, d := range descriptors {
		if err := registry.Register(d); err != nil {
			return nil, fmt.Errorf("register %s: %w", d.Name(), err)
		}
	}
	return registry, nil
}

// newBackend constructs the configured backend variant.
func newBackend(cfg config.BackendConfig) (backend.Backend, error) {
	switch backend.Kind(cfg.Kind) {
	case backend.KindAnthropic:
		return anthropicbe.New(func(o *anthropicbe.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			if cfg.APIKey != "" {
				o.APIKey = cfg.APIKey
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case backend.KindOpenAI:
		return openaibe.New(func(o *openaibe.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case backend.KindOllama:
		return ollamabe.New(func(o *ollamabe.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		})
	case backend.KindScript:
		return scriptbe.New(func(o *scriptbe.Options) {
			o.Command = cfg.Command
			o.Args = cfg.Args
		})
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
