package reliability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/mailrake/mailrake/pkg/browser"
)

// Policy names registered by NewRegistry. Every I/O-touching component
// pulls its policy from the registry by one of these names so retry
// behavior is tuned in exactly one place.
const (
	PolicyElementTransient = "element-transient"
	PolicyResourceFetch    = "resource-fetch"
	PolicyFileIO           = "file-io"
	PolicyPageRefresh      = "page-refresh"
	PolicyCompletionCall   = "completion-call"
)

// Policy is a named retry policy: which errors to retry, how many attempts
// to make, and how long to sleep between them.
type Policy struct {
	Name        string
	MaxAttempts int
	// Backoff returns the sleep before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries everything.
	Retryable func(err error) bool
}

// Execute runs fn under the policy. The error from the final attempt is
// returned unchanged so callers can still classify it; context
// cancellation aborts the sleep between attempts.
func (p Policy) Execute(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// FixedBackoff sleeps the same duration between every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff sleeps base*2^(attempt-1), capped at max.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := float64(base) * math.Pow(2, float64(attempt-1))
		if d > float64(max) || math.IsInf(d, 0) {
			return max
		}
		return time.Duration(d)
	}
}

// Registry holds the named policies shared by all components.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds the standard policy set.
func NewRegistry() *Registry {
	r := &Registry{policies: make(map[string]Policy)}
	r.register(Policy{
		Name:        PolicyElementTransient,
		MaxAttempts: 3,
		Backoff:     FixedBackoff(200 * time.Millisecond),
		Retryable:   browser.IsNotAttached,
	})
	r.register(Policy{
		Name:        PolicyResourceFetch,
		MaxAttempts: 3,
		Backoff:     FixedBackoff(500 * time.Millisecond),
	})
	r.register(Policy{
		Name:        PolicyFileIO,
		MaxAttempts: 3,
		Backoff:     FixedBackoff(200 * time.Millisecond),
		Retryable:   isFileIOError,
	})
	r.register(Policy{
		Name:        PolicyPageRefresh,
		MaxAttempts: 3,
		Backoff:     FixedBackoff(500 * time.Millisecond),
		Retryable: func(err error) bool {
			return browser.IsNavigation(err) || browser.IsTimeout(err)
		},
	})
	r.register(Policy{
		Name:        PolicyCompletionCall,
		MaxAttempts: 4,
		Backoff:     ExponentialBackoff(2*time.Second, 30*time.Second),
	})
	return r
}

func (r *Registry) register(p Policy) {
	r.policies[p.Name] = p
}

// Get returns the named policy. Asking for an unregistered name is a
// programming error and panics during startup wiring rather than failing
// quietly at retry time.
func (r *Registry) Get(name string) Policy {
	p, ok := r.policies[name]
	if !ok {
		panic(fmt.Sprintf("reliability: unknown policy %q", name))
	}
	return p
}

// isFileIOError matches filesystem and permission failures.
func isFileIOError(err error) bool {
	if err == nil {
		return false
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, fs.ErrExist) ||
		errors.Is(err, fs.ErrNotExist)
}
