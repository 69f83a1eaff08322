package client

import (
	"context"
	"math/rand"
	"time"

	"agentcore/backend"
	"agentcore/logging"
)

const maxRetryDelay = 30 * time.Second

// callBackend invokes the backend, retrying transient failures with
// exponential backoff and jitter. Non-transient errors and context
// cancellation return immediately.
func (c *Client) callBackend(ctx context.Context, req backend.Request, onDelta func(string)) (*backend.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.opts.RetryBaseDelay, attempt-1)
			c.opts.Logger.Info("retrying backend call", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := c.backend.Next(ctx, req, onDelta)
		if cl, ok := c.opts.Logger.(*logging.CoreLogger); ok {
			tokens := 0
			if resp != nil && resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}
			cl.LogBackendCall(c.backend.Info().Provider, tokens, time.Since(start), err)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !backend.IsTransient(err) {
			return nil, err
		}
		c.opts.Logger.Warn("backend call failed, will retry", "attempt", attempt, "error", err)
	}

	return nil, lastErr
}

// backoffDelay doubles the base per attempt with up to 25% jitter, capped.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > maxRetryDelay || delay <= 0 {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}
