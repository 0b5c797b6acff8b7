// Package retry runs a single ledger call with bounded attempts.
// Wrap individual RPC calls only; never a multi-step flow, or a retried
// flow may submit the same transaction twice.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/vault-relayer/agreement"
)

const DefaultMaxAttempts = 3

var ErrRetryExhausted = errors.New("retry failed")

type Config struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	ShouldRetry func(err error) bool
	// Name only shows up in logs.
	Name string
}

type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(c *Config) { c.Backoff = f }
}

func WithShouldRetry(f func(err error) bool) Option {
	return func(c *Config) { c.ShouldRetry = f }
}

func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// DefaultBackoff is quadratic: 500ms, 2s, 4.5s, ...
func DefaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 500 * time.Millisecond
}

// DefaultShouldRetry refuses errors that cannot change between attempts,
// such as a missing account or a malformed input.
func DefaultShouldRetry(err error) bool {
	return agreement.Retryable(err)
}

func newConfig(opts []Option) *Config {
	cfg := &Config{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		ShouldRetry: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

// Do calls op until it succeeds, attempts run out, ShouldRetry refuses,
// or ctx is done. The returned error wraps both ErrRetryExhausted and the
// last error from op.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := newConfig(opts)

	var (
		zero    T
		lastErr error
		made    int
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, err
			}
			lastErr = errors.Join(lastErr, err)
			break
		}

		res, err := op(ctx)
		made++
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !cfg.ShouldRetry(err) {
			break
		}

		delay := cfg.Backoff(attempt)
		logger.WithFields(logger.Fields{
			"op":      cfg.Name,
			"attempt": attempt,
			"delay":   delay,
		}).Debugf("retrying after err=%v", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, made, errors.Join(lastErr, ctx.Err()))
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, made, lastErr)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
