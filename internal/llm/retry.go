package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"voice-broker-go/internal/config"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// retrying wraps a Client with a rate limiter, a per-call timeout and bounded retries.
type retrying struct {
	next       Client
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// WithRetry decorates next. Each attempt waits on the limiter and is bounded by
// cfg.Timeout; failed attempts are retried up to cfg.MaxRetries times with exponential
// backoff.
func WithRetry(next Client, cfg config.LLM, logger *zap.Logger) Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &retrying{
		next:       next,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    timeout,
		maxRetries: max(cfg.MaxRetries, 0),
		backoff:    500 * time.Millisecond,
		logger:     logger.Named("llm"),
	}
}

func (r *retrying) Classify(ctx context.Context, text, schemaHint string) (string, error) {
	return r.do(ctx, "classify", func(ctx context.Context) (string, error) {
		return r.next.Classify(ctx, text, schemaHint)
	})
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	return r.do(ctx, "generate", func(ctx context.Context) (string, error) {
		return r.next.Generate(ctx, prompt)
	})
}

func (r *retrying) do(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for i := 0; i <= r.maxRetries; i++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait failed: %w", errors.Join(ErrUnavailable, err))
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := call(attemptCtx)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if i == r.maxRetries || ctx.Err() != nil {
			break
		}

		wait := time.Duration(math.Pow(2, float64(i))) * r.backoff
		r.logger.Warn("Model call failed, retrying...",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", fmt.Errorf("%s cancelled: %w", op, errors.Join(ErrUnavailable, ctx.Err()))
		}
	}
	return "", fmt.Errorf("%s failed after %d attempts: %w", op, r.maxRetries+1, errors.Join(ErrUnavailable, lastErr))
}
