package hotrod

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pior/hotrod/protocol"
)

// Connection wraps a net.Conn with buffered reading, the per-connection
// message id counter and the broken state.
//
// Requests are strictly sequential: one write, then the full response, then
// the next request. Concurrent callers are serialized.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader

	mu        sync.Mutex
	messageID uint64
	broken    error
	closed    bool
}

// NewConnection creates a connection over an established net.Conn.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// Send writes req and reads its response.
//
// The message id of req is set from the connection counter, which advances
// only once the request was written. The context deadline, if any, bounds
// both the write and the read; without one the call blocks until the server
// answers or closes the connection.
//
// Errors that leave the stream out of sync mark the connection broken:
// later calls fail with ErrConnectionBroken wrapping that error.
func (c *Connection) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionBroken, c.broken)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	} else {
		c.conn.SetDeadline(time.Time{})
	}

	req.MessageID = c.messageID
	if err := protocol.WriteRequest(c.conn, req); err != nil {
		c.markBrokenIfNeeded(err)
		return nil, err
	}
	c.messageID = nextMessageID(c.messageID)

	resp, err := protocol.ReadResponse(c.reader, req.WantsPrevious())
	if err != nil {
		c.markBrokenIfNeeded(err)
		return nil, err
	}

	return resp, nil
}

// MessageID returns the message id the next request will carry.
func (c *Connection) MessageID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageID
}

// Broken returns the error that broke the connection, or nil.
func (c *Connection) Broken() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// IsClosed returns whether the connection is closed
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RemoteAddr returns the server address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	return c.conn.Close()
}

// markBrokenIfNeeded must be called with the lock held.
func (c *Connection) markBrokenIfNeeded(err error) {
	if protocol.ShouldCloseConnection(err) {
		c.broken = err
	}
}

func nextMessageID(id uint64) uint64 {
	if id >= protocol.MaxVLong {
		return 0
	}
	return id + 1
}
