package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/openwebindex/platform/pkg/logger"
)

// RetryConfig shapes the backoff schedule. Zero fields take the package
// defaults.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// Retry runs fn until it succeeds, the attempt budget is spent, or ctx is
// cancelled. Waits between attempts grow geometrically, capped at MaxDelay,
// with a jitter fraction on top.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := logger.WithComponent("retry").With("operation", name)

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, lastErr)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}

		wait := backoff(attempt, cfg)
		log.Warn("attempt failed, backing off",
			"attempt", attempt, "max_attempts", cfg.MaxAttempts,
			"wait", wait, "error", lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	wait := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait >= cfg.MaxDelay {
			wait = cfg.MaxDelay
			break
		}
	}
	jitter := time.Duration((2*rand.Float64() - 1) * cfg.JitterFraction * float64(wait))
	wait += jitter
	if wait < 0 {
		wait = cfg.InitialDelay
	}
	if wait > cfg.MaxDelay {
		wait = cfg.MaxDelay
	}
	return wait
}
