package hotrod

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/hotrod/internal/testutils"
	"github.com/pior/hotrod/protocol"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCircuitBreakerSettings(t *testing.T) {
	settings := NewCircuitBreakerSettings("cache", 2, time.Minute, 30*time.Second)

	require.Equal(t, "cache", settings.Name)
	require.Equal(t, uint32(2), settings.MaxRequests)
	require.Equal(t, time.Minute, settings.Interval)
	require.Equal(t, 30*time.Second, settings.Timeout)

	tests := []struct {
		name   string
		counts gobreaker.Counts
		trip   bool
	}{
		{"too few requests", gobreaker.Counts{Requests: 2, TotalFailures: 2}, false},
		{"high failure ratio", gobreaker.Counts{Requests: 3, TotalFailures: 2}, true},
		{"all failed", gobreaker.Counts{Requests: 10, TotalFailures: 10}, true},
		{"low failure ratio", gobreaker.Counts{Requests: 5, TotalFailures: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.trip, settings.ReadyToTrip(tt.counts))
		})
	}
}

func TestNewCircuitBreaker_Nil(t *testing.T) {
	require.Nil(t, newCircuitBreaker(nil))
}

func tripOnFirstFailure() *gobreaker.Settings {
	return &gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
}

func TestCircuitBreaker_ServerErrorsDoNotTrip(t *testing.T) {
	cb := newCircuitBreaker(tripOnFirstFailure())

	for range 3 {
		_, err := cb.Execute(func() (*protocol.Response, error) {
			return nil, &protocol.ProtocolError{Status: protocol.StatusServerError, Message: "boom"}
		})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())

	_, err := cb.Execute(func() (*protocol.Response, error) {
		return nil, &protocol.EncodeError{Field: "key length", Value: protocol.MaxVInt + 1}
	})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateClosed, cb.State())

	_, err = cb.Execute(func() (*protocol.Response, error) {
		return nil, context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_ConnectionErrorsTrip(t *testing.T) {
	cb := newCircuitBreaker(tripOnFirstFailure())

	_, err := cb.Execute(func() (*protocol.Response, error) {
		return nil, &protocol.ConnectionError{Op: "read", Err: protocol.ErrConnectionClosed}
	})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err = cb.Execute(func() (*protocol.Response, error) {
		t.Fatal("should not be called while open")
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCircuitBreaker_CustomIsSuccessful(t *testing.T) {
	settings := tripOnFirstFailure()
	settings.IsSuccessful = func(err error) bool { return err == nil }

	cb := newCircuitBreaker(settings)
	_, err := cb.Execute(func() (*protocol.Response, error) {
		return nil, errors.New("any error")
	})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestRemoteCache_CircuitBreakerOpens(t *testing.T) {
	mock := testutils.NewConnectionMock()
	client, err := NewRemoteCache(mock, Config{
		CircuitBreakerSettings: tripOnFirstFailure(),
		DisableTelemetry:       true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Ping(ctx)
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	_, err = client.Ping(ctx)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, 1, mock.Writes())
}
