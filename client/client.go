package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentcore/backend"
	"agentcore/logging"
	"agentcore/session"
	"agentcore/tool"
	"agentcore/trace"

	"agentcore/internal/util"
)

// StopReason explains why a run ended.
type StopReason string

const (
	// ReasonCompleted means the backend produced a final answer.
	ReasonCompleted StopReason = "completed"
	// ReasonTurnLimit means the hard turn ceiling was reached.
	ReasonTurnLimit StopReason = "turn_limit_reached"
	// ReasonCancelled means the caller cancelled the run.
	ReasonCancelled StopReason = "cancelled"
	// ReasonFatalError means the backend failed after retries.
	ReasonFatalError StopReason = "fatal_error"
)

// Outcome summarizes a finished run.
type Outcome struct {
	Reason      StopReason `json:"reason"`
	FinalText   string     `json:"final_text,omitempty"`
	Turns       int        `json:"turns"`
	OperationID string     `json:"operation_id"`
	SessionID   string     `json:"session_id"`
}

// Options configure a Client.
type Options struct {
	// MaxTurns is the hard ceiling on backend round trips per run.
	MaxTurns int
	// Instructions is the system prompt sent on every turn.
	Instructions string
	// MaxRetries bounds retry attempts for transient backend failures.
	MaxRetries int
	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay time.Duration
	// Store persists session transcripts; defaults to in-memory.
	Store session.Store
	// Tracker records execution state; defaults to a private tracker.
	Tracker *trace.Tracker
	// Logger receives structured run events; defaults to NoOpLogger.
	Logger logging.Logger
	// OnDelta receives best-effort partial backend text.
	OnDelta func(delta string)
}

// Client binds a frozen tool registry to a backend and runs the turn loop.
// The registry is frozen at construction: the capability set a backend sees
// never changes mid-run.
type Client struct {
	registry      *tool.Registry
	backend       backend.Backend
	workspaceRoot string
	opts          Options
	declarations  []backend.ToolDefinition
}

// New creates a Client and freezes the registry.
func New(registry *tool.Registry, be backend.Backend, workspaceRoot string, optFns ...func(o *Options)) *Client {
	opts := Options{
		MaxTurns:       20,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		Store:          session.NewInMemoryStore(),
		Tracker:        trace.NewTracker(0),
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry.Freeze()

	decls := make([]backend.ToolDefinition, 0, registry.Len())
	for _, d := range registry.List() {
		decls = append(decls, backend.ToolDefinition{
			Name:        d.Name(),
			Description: d.Description(),
			Parameters:  d.Schema(),
		})
	}

	return &Client{
		registry:      registry,
		backend:       be,
		workspaceRoot: workspaceRoot,
		opts:          opts,
		declarations:  decls,
	}
}

// Registry exposes the frozen registry backing this client.
func (c *Client) Registry() *tool.Registry { return c.registry }

// Run executes one prompt to completion. sessionID may be empty, in which
// case a fresh session is created; the session id actually used is reported
// in the Outcome.
func (c *Client) Run(ctx context.Context, sessionID, prompt string) (*Outcome, error) {
	sess, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	opID := util.NewID()
	if err := c.opts.Tracker.Start(opID, sess.ID, c.opts.MaxTurns); err != nil {
		return nil, err
	}

	sess.Append(session.Message{Text: prompt, IsUser: true})
	sess.LastPrompt = prompt
	sess.Paused = false
	sess.LastPartialResponse = ""

	history := historyFromSession(sess)

	outcome := &Outcome{OperationID: opID, SessionID: sess.ID}
	var partial string
	onDelta := func(delta string) {
		partial += delta
		if c.opts.OnDelta != nil {
			c.opts.OnDelta(delta)
		}
	}

	for turn := 1; turn <= c.opts.MaxTurns; turn++ {
		c.opts.Tracker.BeginTurn(opID)
		turnStart := time.Now()

		resp, err := c.callBackend(ctx, backend.Request{
			Instructions: c.opts.Instructions,
			Messages:     history,
			Tools:        c.declarations,
		}, onDelta)
		if err != nil {
			outcome.Turns = turn
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				outcome.Reason = ReasonCancelled
				c.finishCancelled(sess, partial)
				c.opts.Tracker.Complete(opID, string(ReasonCancelled))
				return outcome, nil
			}
			outcome.Reason = ReasonFatalError
			c.opts.Tracker.Complete(opID, string(ReasonFatalError))
			c.persist(sess)
			return outcome, fmt.Errorf("backend failed: %w", err)
		}

		if resp.Usage != nil {
			c.opts.Tracker.AddUsage(opID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		history = append(history, backend.Message{
			Role:      backend.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if resp.Final() {
			outcome.Reason = ReasonCompleted
			outcome.FinalText = resp.Text
			outcome.Turns = turn
			sess.Append(session.Message{Text: resp.Text})
			c.persist(sess)
			c.opts.Tracker.Complete(opID, string(ReasonCompleted))
			c.opts.Logger.Info("run completed", "operation_id", opID, "turns", turn)
			return outcome, nil
		}

		returns := c.dispatch(ctx, opID, resp.ToolCalls)
		history = append(history, backend.Message{
			Role:        backend.RoleTool,
			ToolReturns: returns,
		})

		if ctx.Err() != nil {
			outcome.Reason = ReasonCancelled
			outcome.Turns = turn
			c.finishCancelled(sess, partial)
			c.opts.Tracker.Complete(opID, string(ReasonCancelled))
			return outcome, nil
		}

		c.persist(sess)
		if cl, ok := c.opts.Logger.(*logging.CoreLogger); ok {
			cl.LogTurn(turn, c.opts.MaxTurns, len(resp.ToolCalls), time.Since(turnStart))
		} else {
			c.opts.Logger.Debug("turn finished",
				"operation_id", opID,
				"turn", turn,
				"tool_calls", len(resp.ToolCalls),
				"duration", time.Since(turnStart),
			)
		}
	}

	outcome.Reason = ReasonTurnLimit
	outcome.Turns = c.opts.MaxTurns
	c.persist(sess)
	c.opts.Tracker.Complete(opID, string(ReasonTurnLimit))
	c.opts.Logger.Warn("run hit turn ceiling", "operation_id", opID, "max_turns", c.opts.MaxTurns)
	return outcome, nil
}

func (c *Client) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return session.NewSession(), nil
	}
	sess, err := c.opts.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess == nil {
		sess = session.NewSession()
		sess.ID = sessionID
	}
	return sess, nil
}

// historyFromSession rebuilds backend history from the persisted transcript.
// Tool exchanges are not persisted; only user and assistant text survive
// across runs.
func historyFromSession(sess *session.Session) []backend.Message {
	history := make([]backend.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		role := backend.RoleAssistant
		if m.IsUser {
			role = backend.RoleUser
		}
		if m.Text != "" {
			history = append(history, backend.Message{Role: role, Text: m.Text})
		}
	}
	return history
}

func (c *Client) finishCancelled(sess *session.Session, partial string) {
	sess.Paused = true
	sess.LastPartialResponse = partial
	c.persist(sess)
}

// persist is best-effort: a failed save must not abort a run.
func (c *Client) persist(sess *session.Session) {
	if err := c.opts.Store.Put(context.Background(), sess); err != nil {
		c.opts.Logger.Error("session save failed", "session_id", sess.ID, "error", err)
	}
}
