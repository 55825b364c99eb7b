package monitor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kbdash/internal/apperrors"
	"kbdash/internal/config"
)

// Policy bounds how a single logical request is attempted.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Delay          time.Duration
}

// DataFetchPolicy is used for idempotent reads: 4 attempts, 5s each, 2s apart.
func DataFetchPolicy(cfg config.Retry) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout(),
		Delay:          cfg.Delay(),
	}
}

// SingleAttempt is used for calls that must not be replayed.
func SingleAttempt(timeout time.Duration) Policy {
	return Policy{MaxAttempts: 1, AttemptTimeout: timeout}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 5 * time.Second
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Attempt performs one try of a request. It must finish reading the
// response before returning, since ctx expires when it returns.
type Attempt[T any] func(ctx context.Context) (T, error)

// Execute runs attempt under policy. Timeouts and network failures are
// retried after the fixed delay; upstream HTTP errors and malformed payloads
// are returned at once. Retrying stops early if the monitor flips to
// Disconnected while the request is pending. A terminal failure preceded by
// at least EscalateAfter consecutive network-level failures marks the
// backend Disconnected; a success marks it Connected.
func Execute[T any](ctx context.Context, m *Monitor, policy Policy, attempt Attempt[T]) (T, error) {
	policy = policy.normalized()

	var (
		result      T
		attempts    int
		consecutive int
		lost        bool
	)
	epoch := m.epoch()

	op := func() error {
		if attempts > 0 && m.lostSince(epoch) {
			lost = true
			return backoff.Permanent(apperrors.NewUnavailableError("backend became unreachable; reconnect to retry"))
		}
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()

		value, err := attempt(attemptCtx)
		if err == nil {
			result = value
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if !apperrors.IsNetworkLevel(err) {
			consecutive = 0
			return backoff.Permanent(err)
		}
		consecutive++
		return err
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(policy.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		m.log.Debug("retrying backend request", "attempt", attempts, "max_attempts", policy.MaxAttempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, schedule, notify); err != nil {
		if !lost && consecutive >= m.escalateAfter {
			m.escalate(consecutive)
		}
		var zero T
		return zero, err
	}

	m.markReachable()
	return result, nil
}
