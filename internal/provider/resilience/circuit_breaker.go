// Package resilience provides the HTTP client used for every remote source:
// per-attempt timeouts, bounded retries with geometric backoff, Retry-After
// handling and a circuit breaker, plus a registry of provider health.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker for logging/metrics.
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing internal counts when closed.
	// Default: 0 (disabled)
	Interval time.Duration

	// Timeout is the period of open state before switching to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// ReadyToTrip determines when to trip the circuit breaker.
	// If nil, the client trips after TripThreshold(MaxAttempts) consecutive
	// failed attempts.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns a sensible default configuration.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
	}
}

// DefaultTripThreshold is the number of consecutive failed attempts that
// opens the circuit at the default attempt budget.
const DefaultTripThreshold = 10

// TripThreshold returns the consecutive failures that open the circuit for a
// client making up to maxAttempts attempts per call. It never falls below
// DefaultTripThreshold and always spans two exhausted calls.
func TripThreshold(maxAttempts int) uint32 {
	n := 2 * maxAttempts
	if n < DefaultTripThreshold {
		n = DefaultTripThreshold
	}
	return uint32(n) //nolint:gosec // bounded by config
}

// ReadyToTripAfter trips once n consecutive failures have been counted.
func ReadyToTripAfter(n uint32) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
}

// DefaultReadyToTrip trips after DefaultTripThreshold consecutive failures.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	return counts.ConsecutiveFailures >= DefaultTripThreshold
}

// openTimeout is the open period gobreaker applies for a configured timeout.
func openTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = DefaultReadyToTrip
	}

	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}
