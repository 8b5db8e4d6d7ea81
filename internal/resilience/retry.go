package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultThrottleWait is the extended pause taken after a rate-limit response.
const DefaultThrottleWait = 30 * time.Second

// RetryConfig controls how a failed call is retried.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Wait is the fixed delay before each retry.
	Wait time.Duration

	// ShouldRetry decides whether an error is retried. Defaults to IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// ThrottleRetry returns the policy used for collaborator calls: a single
// extended wait and retry of the same item after a rate-limit response.
// Other errors are returned immediately.
func ThrottleRetry(wait time.Duration, onRetry func(int, error)) RetryConfig {
	if wait < 0 {
		wait = 0
	}
	return RetryConfig{
		MaxAttempts: 2,
		Wait:        wait,
		ShouldRetry: IsThrottled,
		OnRetry:     onRetry,
	}
}

// Do executes fn with the retry policy in cfg.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with the retry policy in cfg. The wait
// between attempts is abandoned when ctx is cancelled, returning the last error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		if cfg.Wait > 0 {
			timer := time.NewTimer(cfg.Wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(log *zap.Logger, operation string) func(int, error) {
	return func(attempt int, err error) {
		log.Warn("rate limited, waiting before retry",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
