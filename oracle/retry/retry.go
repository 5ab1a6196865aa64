// Package retry runs an operation again with capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/GPTx-global/flight-oracle/oracle/log"
)

// Config controls the attempts of Do. MaxAttempts <= 0 retries until ctx is done.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig is used for one-shot RPC work such as the startup backfill.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// SubscriptionConfig never gives up, subscriptions are re-established for the process lifetime.
func SubscriptionConfig(base, max time.Duration) *Config {
	return &Config{
		MaxAttempts: 0,
		BaseDelay:   base,
		MaxDelay:    max,
		Multiplier:  2.0,
	}
}

type Func func() error

type IsRetryable func(error) bool

// Always treats every error as retryable.
func Always(err error) bool {
	return err != nil
}

// IsTransient reports network level errors worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"no such host",
		"eof",
		"websocket: close",
		"context deadline exceeded",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out of attempts,
// or ctx is done.
func Do(ctx context.Context, config *Config, fn Func, isRetryable IsRetryable) error {
	var lastErr error

	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Debugf("retry: succeeded on attempt %d", attempt)
			}
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if config.MaxAttempts > 0 && attempt == config.MaxAttempts {
			break
		}

		delay := Delay(config, attempt)
		log.Warnf("retry: attempt %d failed: %v, next in %v", attempt, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", config.MaxAttempts, lastErr)
}

// Delay is the wait after the given failed attempt: BaseDelay * Multiplier^(attempt-1),
// capped at MaxDelay.
func Delay(config *Config, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
