package testutils

import (
	"bytes"
	"net"
	"time"
)

// ConnectionMock is a mock implementation of net.Conn for testing.
// Reads are served from scripted response bytes; writes are recorded.
type ConnectionMock struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	writes   int
	closed   bool
	deadline time.Time

	// WriteErr, when set, fails every Write.
	WriteErr error
}

// NewConnectionMock creates a new mock connection with pre-configured response frames
func NewConnectionMock(responses ...[]byte) *ConnectionMock {
	return &ConnectionMock{
		readBuf:  bytes.NewBuffer(bytes.Join(responses, nil)),
		writeBuf: &bytes.Buffer{},
	}
}

func (m *ConnectionMock) Read(b []byte) (n int, err error) {
	return m.readBuf.Read(b)
}

func (m *ConnectionMock) Write(b []byte) (n int, err error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.writes++
	return m.writeBuf.Write(b)
}

func (m *ConnectionMock) Close() error {
	m.closed = true
	return nil
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11222}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { m.deadline = t; return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// GetWrittenRequest returns the raw request bytes written to the mock connection
func (m *ConnectionMock) GetWrittenRequest() []byte {
	return m.writeBuf.Bytes()
}

// ResetWritten discards the recorded request bytes.
func (m *ConnectionMock) ResetWritten() {
	m.writeBuf.Reset()
	m.writes = 0
}

// Writes returns the number of Write calls.
func (m *ConnectionMock) Writes() int {
	return m.writes
}

// Deadline returns the last deadline set on the connection.
func (m *ConnectionMock) Deadline() time.Time {
	return m.deadline
}

// IsClosed reports whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	return m.closed
}
