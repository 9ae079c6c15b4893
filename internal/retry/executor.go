package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// MaxRetriesLimit bounds Policy.MaxRetries
const MaxRetriesLimit = 30

// Policy controls how many times an auth-expired operation is retried
type Policy struct {
	MaxRetries  int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
	Exponential bool          `json:"exponential" yaml:"exponential"`
}

// DefaultPolicy is three retries starting at one second and doubling
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, Exponential: true}
}

// Validate rejects policies that cannot be executed
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return &InvalidPolicyError{Reason: "max_retries must be >= 0"}
	}
	if p.MaxRetries > MaxRetriesLimit {
		return &InvalidPolicyError{Reason: "max_retries must be <= 30"}
	}
	if p.BaseDelay < 0 {
		return &InvalidPolicyError{Reason: "base_delay must be >= 0"}
	}
	return nil
}

// Backoff returns the wait after the given zero-based attempt. Exponential
// delays saturate at the largest time.Duration instead of wrapping.
func (p Policy) Backoff(attempt int) time.Duration {
	if !p.Exponential || p.BaseDelay <= 0 {
		return p.BaseDelay
	}
	shift := min(max(attempt, 0), MaxRetriesLimit)
	if p.BaseDelay > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay << shift
}

// Coordinator is the part of the session refresh coordinator the executor needs
type Coordinator interface {
	AwaitIfRefreshing(ctx context.Context) error
	Refresh(ctx context.Context) bool
}

// Executor runs data operations, refreshing the session and retrying on auth expiry
type Executor struct {
	coordinator Coordinator
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates a retry executor backed by the given refresh coordinator
func NewExecutor(coordinator Coordinator, logger *zap.Logger) *Executor {
	return &Executor{
		coordinator: coordinator,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Run executes op under policy
func (e *Executor) Run(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do executes op under policy and returns its result.
//
// Every attempt first waits for any in-flight session refresh. Errors that are not
// auth expiry are returned unchanged. Auth expiry triggers a coordinated refresh and a
// backoff wait before the next attempt; once attempts run out the last error is
// returned inside a *RetriesExhaustedError.
func Do[T any](ctx context.Context, e *Executor, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	refreshFailures := 0
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := e.coordinator.AwaitIfRefreshing(ctx); err != nil {
			return zero, err
		}

		attempts++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsAuthExpired(err) {
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		if !e.coordinator.Refresh(ctx) {
			refreshFailures++
			e.logger.Warn("Session refresh failed during retry",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", policy.MaxRetries),
				zap.Error(err))
		}

		delay := policy.Backoff(attempt)
		e.logger.Debug("Retrying after auth expiry",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))
		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	e.logger.Error("Operation failed after retries",
		zap.Int("attempts", attempts),
		zap.Int("refresh_failures", refreshFailures),
		zap.Error(lastErr))
	return zero, &RetriesExhaustedError{
		Attempts:        attempts,
		RefreshFailures: refreshFailures,
		Err:             lastErr,
	}
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
