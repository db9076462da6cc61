package backend

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig configures the exponential backoff retry policy.
type RetryConfig struct {
	MaxAttempts         int           // total attempts including the first (default 3)
	InitialInterval     time.Duration // first backoff wait (default 2s)
	MaxInterval         time.Duration // backoff ceiling (default 30s)
	Multiplier          float64       // backoff multiplier (default 2.0)
	RandomizationFactor float64       // jitter factor (default 0.25)
}

// DefaultRetryConfig returns the default retry configuration. Waits grow
// roughly as 2^attempt seconds with a little jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     2 * time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.25,
	}
}

// BreakerRegistry manages per-backend circuit breakers.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// Get returns the breaker for the named backend, creating it on first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a backend failure.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[name] = cb
	return cb
}

// Retrying wraps a Backend with bounded retry, exponential backoff, and a
// circuit breaker. Only TransientError is retried; fatal classes and an
// open circuit fail immediately.
type Retrying struct {
	inner Backend
	cfg   RetryConfig
	cb    *gobreaker.CircuitBreaker
}

// WithRetry wraps b using cfg and a breaker from reg. A nil reg gets a
// private registry.
func WithRetry(b Backend, cfg RetryConfig, reg *BreakerRegistry) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultRetryConfig().Multiplier
	}
	if reg == nil {
		reg = NewBreakerRegistry()
	}
	return &Retrying{inner: b, cfg: cfg, cb: reg.Get(b.Name())}
}

// Generate calls the wrapped backend, retrying transient failures up to
// the attempt ceiling. On success the consumed attempt count is filled in
// on the response; on exhaustion an *ExhaustedError is returned.
func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	var resp Response
	attempts := 0

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		attempts++
		start := time.Now()
		result, err := r.cb.Execute(func() (interface{}, error) {
			return r.inner.Generate(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if IsRetryable(err) {
				if attempts >= r.cfg.MaxAttempts {
					return backoff.Permanent(&ExhaustedError{Attempts: attempts, Last: err})
				}
				return err
			}
			// Fatal classes: retrying cannot succeed.
			return backoff.Permanent(err)
		}

		resp = result.(Response)
		resp.Attempts = attempts
		resp.Elapsed = time.Since(start)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = r.cfg.MaxInterval
	policy.Multiplier = r.cfg.Multiplier
	policy.RandomizationFactor = r.cfg.RandomizationFactor
	policy.MaxElapsedTime = 0 // attempts are bounded by count, not time

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Close closes the wrapped backend.
func (r *Retrying) Close() error { return r.inner.Close() }

// Name returns the wrapped backend's name.
func (r *Retrying) Name() string { return r.inner.Name() }
