package hotrod

import (
	"context"
	"errors"
	"time"

	"github.com/pior/hotrod/protocol"
	"github.com/sony/gobreaker/v2"
)

// NewCircuitBreakerSettings returns circuit breaker settings for common use
// cases: the breaker trips once at least 3 requests were seen and 60% of them
// failed.
func NewCircuitBreakerSettings(name string, maxRequests uint32, interval, timeout time.Duration) *gobreaker.Settings {
	return &gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	}
}

// newCircuitBreaker builds the breaker for a client. Server error responses
// and rejected arguments leave the connection usable, so they do not count
// as failures unless the settings say otherwise.
func newCircuitBreaker(settings *gobreaker.Settings) *gobreaker.CircuitBreaker[*protocol.Response] {
	if settings == nil {
		return nil
	}

	s := *settings
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool {
			if errors.Is(err, context.Canceled) {
				return true
			}
			return err == nil || !protocol.ShouldCloseConnection(err)
		}
	}
	return gobreaker.NewCircuitBreaker[*protocol.Response](s)
}
