package chronos

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// RetryConfig configures retry behavior for backend operations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, the first
	// included. Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	// Default: 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 30s.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff after each retry.
	// Default: 2.0.
	BackoffMultiplier float64

	// Jitter randomizes the backoff by ±(Jitter*100)%. Default: 0.1.
	Jitter float64

	// RetryIf decides whether an error is worth retrying. Nil retries
	// everything.
	RetryIf func(error) bool
}

// Retryer runs operations with exponential backoff.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, filling unset fields with defaults.
func NewRetryer(config RetryConfig) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = 0.1
	}
	return &Retryer{config: config}
}

// Do executes op until it succeeds, the attempts run out, the error is
// classified non-retryable, or the context is done.
func (r *Retryer) Do(ctx context.Context, op func() error) error {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if r.config.RetryIf != nil && !r.config.RetryIf(lastErr) {
			return lastErr
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.addJitter(backoff)):
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}
	return lastErr
}

func (r *Retryer) addJitter(d time.Duration) time.Duration {
	if r.config.Jitter == 0 {
		return d
	}
	jitter := (rand.Float64()*2 - 1) * float64(d) * r.config.Jitter
	return time.Duration(float64(d) + jitter)
}

// IsRetryable classifies an error as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"503",
		"502",
		"504",
		"429",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// ErrCircuitOpen is returned while the circuit breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops hammering a failing backend: after maxFailures
// consecutive errors it rejects calls until resetTimeout has passed,
// then lets one probe through. Safe for concurrent use.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        circuitState
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Execute runs op through the breaker.
func (cb *CircuitBreaker) Execute(op func() error) error {
	cb.mu.Lock()
	allowed := cb.allowLocked()
	cb.mu.Unlock()

	if !allowed {
		return ErrCircuitOpen
	}

	err := op()

	cb.mu.Lock()
	cb.recordLocked(err)
	cb.mu.Unlock()
	return err
}

func (cb *CircuitBreaker) allowLocked() bool {
	switch cb.state {
	case circuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = circuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordLocked(err error) {
	if err == nil {
		cb.failures = 0
		cb.state = circuitClosed
		return
	}
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.state = circuitOpen
	}
}

// State returns the breaker state as a string.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
