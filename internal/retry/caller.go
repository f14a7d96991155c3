// Package retry wraps a text-generation client with per-attempt timeouts,
// bounded exponential backoff and optional client-side rate limiting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/doc-router/internal/core"
)

// Policy bounds the retry loop
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy is used for zero-valued policy fields
var DefaultPolicy = Policy{
	MaxAttempts:     3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     8 * time.Second,
	Multiplier:      2,
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultPolicy.Multiplier
	}
	return p
}

// Caller implements core.LLMClient on top of another client
type Caller struct {
	client  core.LLMClient
	policy  Policy
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Caller
type Option func(*Caller)

// WithTimeout bounds each individual attempt
func WithTimeout(d time.Duration) Option {
	return func(c *Caller) {
		c.timeout = d
	}
}

// WithRateLimit paces attempts with a token bucket. A non-positive rate disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Caller) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLimiter shares an existing limiter between callers
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Caller) {
		c.limiter = l
	}
}

// NewCaller creates a new retrying caller
func NewCaller(client core.LLMClient, policy Policy, logger *zap.Logger, opts ...Option) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Caller{
		client: client,
		policy: policy.withDefaults(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete runs the request until it succeeds, fails permanently or the
// attempt budget runs out. Exhaustion wraps core.ErrServiceUnavailable.
func (c *Caller) Complete(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.Multiplier = c.policy.Multiplier
	b.MaxElapsedTime = 0

	attempts := 0
	operation := func() (*core.Completion, error) {
		attempts++
		completion, err := c.attempt(ctx, req)
		if err == nil {
			return completion, nil
		}
		if ctx.Err() != nil || !core.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Service call failed, retrying",
			zap.String("task", req.Task),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts-1)), ctx)
	completion, err := backoff.RetryNotifyWithData[*core.Completion](operation, policy, notify)
	if err == nil {
		return completion, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("service call abandoned after %d attempts: %w", attempts, ctxErr)
	}
	if core.IsTransient(err) {
		c.logger.Error("Service call retries exhausted",
			zap.String("task", req.Task),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %d attempts: %v", core.ErrServiceUnavailable, attempts, err)
	}
	return nil, fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
}

func (c *Caller) attempt(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	completion, err := c.client.Complete(attemptCtx, req)
	if err != nil {
		// A per-attempt timeout is retryable; the caller's own deadline is not
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !core.IsTransient(err) {
			return nil, core.Transient(fmt.Errorf("attempt timed out after %s: %w", c.timeout, err))
		}
		return nil, err
	}
	if completion == nil {
		return nil, errors.New("service returned no completion")
	}
	return completion, nil
}

// Close closes the wrapped client if it holds resources
func (c *Caller) Close() error {
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
