package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Error types for Hot Rod operations.
// These errors tell the caller whether the connection that produced them can
// carry another request, or whether the stream is out of sync and the
// connection must be closed.

// ErrConnectionClosed is wrapped in a ConnectionError when the peer closed the
// stream before a complete frame was read.
var ErrConnectionClosed = errors.New("connection closed by peer")

// ErrUnknownOpcode is wrapped in a DecodeError when a frame carries an opcode
// with no codec.
var ErrUnknownOpcode = errors.New("unknown opcode")

// EncodeError is returned when a request cannot be represented on the wire.
// It is detected before anything is written.
//
// Common causes:
//   - Key, value or cache name longer than MaxVInt bytes
//   - Lifespan, max idle or bulk count above MaxVInt
//
// Connection handling: Connection is still valid, nothing was sent
type EncodeError struct {
	Field string
	Value uint64
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode error: %s %d exceeds maximum %d", e.Field, e.Value, uint64(MaxVInt))
}

// ShouldCloseConnection returns false - nothing reached the wire
func (e *EncodeError) ShouldCloseConnection() bool {
	return false
}

// DecodeError represents a response the client could not parse.
//
// Common causes:
//   - Varint longer than 64 bits
//   - Length prefix above MaxVInt
//   - Unknown response opcode
//   - Bulk entry marker other than 0 or 1
//
// Connection handling: Connection should be CLOSED as the stream position is unknown
type DecodeError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode error: " + e.Message + ": " + e.Err.Error()
	}
	return "decode error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the stream is out of sync
func (e *DecodeError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps underlying I/O errors from connection operations.
//
// Common causes:
//   - Connection closed by the server (Err is ErrConnectionClosed)
//   - Network timeout from a context deadline
//   - Connection reset
//
// Connection handling: Connection is already broken, CLOSE it
type ConnectionError struct {
	Op  string // Operation that failed (read, write, dial)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ProtocolError is an error response sent by the server: either the error
// opcode or a status outside the success set, followed by a message.
//
// Common causes:
//   - Unknown cache name (StatusServerError, message names the exception)
//   - Server side timeout (StatusCommandTimedOut)
//   - Request rejected by the server parser (StatusParseError)
//
// Connection handling: Connection can be REUSED, the whole error frame was read
type ProtocolError struct {
	Status  Status
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server error %s (0x%02x): %s", e.Status, uint8(e.Status), e.Message)
}

// ShouldCloseConnection returns false - the error frame was fully consumed
func (e *ProtocolError) ShouldCloseConnection() bool {
	return false
}

// InvalidMagicError is returned when a response does not start with
// MagicResponse.
//
// Connection handling: Connection must be CLOSED, the peer is not speaking Hot Rod
type InvalidMagicError struct {
	Magic Magic
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("invalid magic 0x%02x, expected 0x%02x", uint8(e.Magic), uint8(MagicResponse))
}

// ShouldCloseConnection returns true - the stream cannot be trusted
func (e *InvalidMagicError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is an interface for errors that indicate
// whether the connection should be closed.
// Implemented by all protocol error types.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection is a helper function to determine if an error
// requires closing the connection.
//
// Returns true for:
//   - DecodeError
//   - ConnectionError
//   - InvalidMagicError
//   - unknown error types
//
// Returns false for:
//   - EncodeError
//   - ProtocolError
//   - nil
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	// Unknown error type - be conservative and close connection
	return true
}

// readError converts a reader failure into a ConnectionError.
func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectionError{Op: "read", Err: ErrConnectionClosed}
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}

	return &ConnectionError{Op: "read", Err: err}
}
