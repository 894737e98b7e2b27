package hotrod

import (
	"net"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Config holds configuration for a RemoteCache.
type Config struct {
	// CacheName selects a named cache on the server.
	// Empty means the server default cache.
	CacheName string

	// Dialer is the net.Dialer used by Dial.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// Logger receives debug logs per operation and a warning when the
	// connection breaks. Keys are logged as fingerprints.
	// If nil, nothing is logged.
	Logger *zap.Logger

	// CircuitBreakerSettings wraps every round trip in a circuit breaker.
	// Only errors that break the connection count as failures.
	// If nil, no circuit breaker is used.
	CircuitBreakerSettings *gobreaker.Settings

	// DisableTelemetry turns off OpenTelemetry spans and the operation
	// duration histogram.
	DisableTelemetry bool
}
