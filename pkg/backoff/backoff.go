// pkg/backoff/backoff.go

// Package backoff retries operations with exponential delays. It drives the
// websocket and Kafka connect loops, Kafka publishes and the opt-in order
// retry.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/YaganovValera/optionstream/pkg/logger"
)

// Config describes one retry policy. Zero fields take defaults.
type Config struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"` // jitter, 0..1
	Multiplier          float64       `mapstructure:"multiplier"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`

	// MaxElapsedTime and MaxRetries bound the whole cycle; zero is unbounded.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`
	MaxRetries     uint64        `mapstructure:"max_retries"`

	// PerAttemptTimeout bounds each call of the operation.
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

func (c Config) validate() error {
	switch {
	case c.RandomizationFactor < 0 || c.RandomizationFactor > 1:
		return fmt.Errorf("randomization_factor %v outside [0,1]", c.RandomizationFactor)
	case c.Multiplier < 1:
		return fmt.Errorf("multiplier %v below 1", c.Multiplier)
	case c.MaxInterval < c.InitialInterval:
		return fmt.Errorf("max_interval %s below initial_interval %s", c.MaxInterval, c.InitialInterval)
	}
	return nil
}

func (c Config) policy(ctx context.Context) cbackoff.BackOff {
	exp := cbackoff.NewExponentialBackOff(
		cbackoff.WithInitialInterval(c.InitialInterval),
		cbackoff.WithRandomizationFactor(c.RandomizationFactor),
		cbackoff.WithMultiplier(c.Multiplier),
		cbackoff.WithMaxInterval(c.MaxInterval),
		cbackoff.WithMaxElapsedTime(c.MaxElapsedTime),
	)
	var b cbackoff.BackOff = exp
	if c.MaxRetries > 0 {
		b = cbackoff.WithMaxRetries(b, c.MaxRetries)
	}
	return cbackoff.WithContext(b, ctx)
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func(ctx context.Context) error

// ErrMaxRetries reports the last failure of an operation that was given up.
type ErrMaxRetries struct {
	Err      error
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent stops the retry cycle with err.
func Permanent(err error) error { return cbackoff.Permanent(err) }

// Execute calls fn until it succeeds, returns a Permanent error, or the
// policy in cfg runs out. op names the operation in metrics and logs.
func Execute(ctx context.Context, op string, cfg Config, log *logger.Logger, fn RetryableFunc) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("backoff: %s: %w", op, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &retrier{op: op, cfg: cfg, fn: fn, log: log.With(zap.String("op", op))}
	return r.run(ctx)
}

type retrier struct {
	op       string
	cfg      Config
	fn       RetryableFunc
	log      *logger.Logger
	attempts int
}

func (r *retrier) run(ctx context.Context) error {
	err := cbackoff.RetryNotify(func() error { return r.attempt(ctx) }, r.cfg.policy(ctx), r.onRetry)
	if err == nil {
		Attempts.WithLabelValues(r.op, outcomeSuccess).Inc()
		return nil
	}
	Attempts.WithLabelValues(r.op, outcomeGiveUp).Inc()
	if !errors.Is(err, context.Canceled) {
		r.log.Error("giving up", zap.Int("attempts", r.attempts), zap.Error(err))
	}
	return &ErrMaxRetries{Err: err, Attempts: r.attempts}
}

func (r *retrier) attempt(ctx context.Context) error {
	r.attempts++
	if r.cfg.PerAttemptTimeout <= 0 {
		return r.fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, r.cfg.PerAttemptTimeout)
	defer cancel()
	return r.fn(actx)
}

func (r *retrier) onRetry(err error, wait time.Duration) {
	Attempts.WithLabelValues(r.op, outcomeRetry).Inc()
	Delay.WithLabelValues(r.op).Observe(wait.Seconds())
	r.log.Warn("retrying",
		zap.Int("attempt", r.attempts),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
}
