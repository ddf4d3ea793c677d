package utils

import (
	"time"

	"github.com/sony/gobreaker"
	"github.com/username/reportsync/src/logger"
)

// NewBreaker returns a circuit breaker that opens after repeated failures of
// an external dependency. Errors for which isClientError returns true (bad
// request, not found) are treated as successes so they cannot open it.
func NewBreaker(name string, isClientError func(error) bool) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	if isClientError != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || isClientError(err)
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// Guard runs fn through cb and returns fn's own error, or the breaker's
// rejection when it is open.
func Guard(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}
