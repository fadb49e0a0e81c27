// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// RetryPolicy is a bounded exponential backoff composed around a provider
// call. Attempt n (0-indexed) waits InitialDelay * Multiplier^n, capped at
// MaxDelay, before attempt n+1.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Sleep waits for d or until ctx is done. Nil means a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts with 2s, 4s waits capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// NoRetry makes exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

// Validate reports policy values that cannot produce a sensible schedule.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "retry max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return sigilerr.New(sigilerr.CodeConfigValidateInvalidValue, "retry delays must not be negative")
	}
	if p.MaxAttempts > 1 && p.Multiplier < 1 {
		return sigilerr.Errorf(sigilerr.CodeConfigValidateInvalidValue, "retry multiplier must be at least 1, got %g", p.Multiplier)
	}
	return nil
}

// Delay returns the wait after the given failed attempt (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 0 {
				slog.Debug("provider call recovered", "op", op, "attempt", attempt+1)
			}
			return nil
		}
		if !retryable(err) || attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		slog.Warn("provider call failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		if serr := sleep(ctx, delay); serr != nil {
			return sigilerr.Wrapf(serr, sigilerr.CodeProviderUpstreamFailure, "%s: cancelled during retry wait", op)
		}
	}
	return err
}

// retryable is false for cancellation and for request errors that would
// fail identically on every attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !sigilerr.HasCode(err, sigilerr.CodeProviderRequestInvalid)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
