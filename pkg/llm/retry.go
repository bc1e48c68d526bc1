package llm

import (
	"context"
	"math"
	"time"
)

// RetryOptions configures retries of the stream-opening call.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryOptions = RetryOptions{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

type retryingAdapter struct {
	Adapter
	options RetryOptions
}

// WithRetry wraps an adapter so that Generate is retried when the backend is
// unavailable. Only opening the stream is retried, never a stream that has
// already produced deltas.
func WithRetry(a Adapter, options RetryOptions) Adapter {
	if options.MaxRetries <= 1 {
		return a
	}
	return &retryingAdapter{Adapter: a, options: options}
}

func (r *retryingAdapter) Generate(ctx context.Context, req Request) (DeltaStream, error) {
	var lastErr error
	for attempt := 0; attempt < r.options.MaxRetries; attempt++ {
		ds, err := r.Adapter.Generate(ctx, req)
		if err == nil {
			return ds, nil
		}
		lastErr = err

		ae, ok := AsAdapterError(err)
		if !ok || !ae.Retryable() || attempt == r.options.MaxRetries-1 {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt, r.options)):
		}
	}
	return nil, lastErr
}

func backoff(attempt int, options RetryOptions) time.Duration {
	delay := time.Duration(float64(options.BaseDelay) * math.Pow(2, float64(attempt)))
	if options.MaxDelay > 0 && delay > options.MaxDelay {
		delay = options.MaxDelay
	}
	return delay
}
