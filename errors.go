package hotrod

import "errors"

var (
	// ErrClientClosed is returned by operations called after Close.
	ErrClientClosed = errors.New("hotrod: client closed")

	// ErrConnectionBroken is returned by operations called after an earlier
	// error left the connection out of sync. It wraps that error.
	ErrConnectionBroken = errors.New("hotrod: connection broken")
)
