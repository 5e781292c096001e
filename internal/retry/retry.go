// Package retry provides bounded retry policies with fixed or exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultMaxDelay    = 10 * time.Second
)

// ErrExhausted is wrapped by Do when every attempt failed with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Multiplier <= 1 keeps the delay fixed at InitialBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Sleep          SleepFunc // nil uses a context-aware timer
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: delay, MaxBackoff: delay, Multiplier: 1}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay returns the wait before the attempt following attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Multiplier <= 1 {
		if p.InitialBackoff > p.MaxBackoff && p.MaxBackoff > 0 {
			return p.MaxBackoff
		}
		return p.InitialBackoff
	}
	d := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns an error rejected by retryable, the
// policy runs out of attempts or ctx is done. It reports the number of attempts made.
// A nil retryable treats every error as retryable.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn(attempt + 1)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return attempt + 1, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		if err := p.Sleep(ctx, p.Delay(attempt)); err != nil {
			return attempt + 1, err
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

// IsTransientFS reports whether a filesystem error is worth another attempt:
// permission denials and busy files usually clear once the other holder lets go.
func IsTransientFS(err error) bool {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETXTBSY) ||
		errors.Is(err, syscall.EAGAIN)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
