package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Backoff multiplier
	Jitter       bool          // Whether to add jitter to delays
}

// DefaultConfig returns default retry configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// OperationWithContext is a function with context that can be retried
type OperationWithContext func(ctx context.Context) error

// IsRetryable checks if an error should be retried
type IsRetryable func(error) bool

// DoWithContext retries op on every error
func DoWithContext(ctx context.Context, op OperationWithContext, config *Config) error {
	return DoWithContextAndRetryable(ctx, op, config, func(error) bool { return true })
}

// DoWithContextAndRetryable retries op while isRetryable accepts its error.
// A non-retryable error is returned unwrapped.
func DoWithContextAndRetryable(ctx context.Context, op OperationWithContext, config *Config, isRetryable IsRetryable) error {
	if config == nil {
		config = DefaultConfig()
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-time.After(calculateDelay(attempt, config)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// calculateDelay calculates the delay for the next retry attempt
func calculateDelay(attempt int, config *Config) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	// up to 25% jitter
	if config.Jitter {
		delay += delay * 0.25 * rand.Float64()
	}

	return time.Duration(delay)
}
