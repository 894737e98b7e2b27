package hotrod

import (
	"time"

	"github.com/pior/hotrod/protocol"
)

// NoExpiration leaves an entry in the cache until it is removed.
const NoExpiration = 0

// Item is a cache entry.
type Item struct {
	Key   string
	Value []byte

	// Lifespan and MaxIdle are sent in whole seconds. Zero means no
	// expiration.
	Lifespan time.Duration
	MaxIdle  time.Duration

	Found bool // indicates whether the key was found in cache
}

// Outcome is the result of a conditional operation.
type Outcome = protocol.Outcome

const (
	Success         = protocol.OutcomeSuccess
	NotApplied      = protocol.OutcomeNotApplied
	VersionMismatch = protocol.OutcomeVersionMismatch
	KeyAbsent       = protocol.OutcomeKeyAbsent
)

// TwoWayResult is the result of PutIfAbsent and Replace.
type TwoWayResult struct {
	// Outcome is Success or NotApplied.
	Outcome Outcome

	// Previous is the value held before the call, when ReturnPrevious was
	// given and there was one.
	Previous []byte
}

// Applied reports whether the write happened.
func (r TwoWayResult) Applied() bool {
	return r.Outcome == Success
}

// ThreeWayResult is the result of ReplaceWithVersion, Remove and
// RemoveWithVersion.
type ThreeWayResult struct {
	// Outcome is Success, VersionMismatch or KeyAbsent.
	Outcome Outcome

	// Previous is the value held before the call, when ReturnPrevious was
	// given and there was one.
	Previous []byte
}

// Applied reports whether the write happened.
func (r ThreeWayResult) Applied() bool {
	return r.Outcome == Success
}

// VersionedValue is the result of GetVersioned. Version is 0 and Value nil
// when the key is absent.
type VersionedValue struct {
	Version uint64
	Value   []byte
	Found   bool
}

// OpOption modifies a write request.
type OpOption func(*protocol.Request)

// ReturnPrevious asks the server to return the value replaced or removed by
// the operation.
func ReturnPrevious() OpOption {
	return func(req *protocol.Request) {
		req.AddReturnPrevious()
	}
}

func applyOptions(req *protocol.Request, opts []OpOption) *protocol.Request {
	for _, opt := range opts {
		opt(req)
	}
	return req
}
