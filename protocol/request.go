package protocol

import "time"

// Request represents a Hot Rod request.
// This is a low-level container for request data without serialization logic.
// Which fields reach the wire depends on Opcode:
//
//	put, putIfAbsent, replace     Key Lifespan MaxIdle Value
//	replaceIfVersion              Key Lifespan MaxIdle Version Value
//	removeIfVersion               Key Version
//	get, getWithVersion, remove,
//	containsKey                   Key
//	bulkGet                       Count
//	clear, stats, ping            (nothing)
type Request struct {
	Opcode    Opcode
	MessageID uint64

	// CacheName selects a named cache. Empty means the server default cache.
	CacheName string
	Flags     Flags

	Key   []byte
	Value []byte

	// Lifespan and MaxIdle are in seconds. Zero means no expiration.
	Lifespan uint64
	MaxIdle  uint64

	// Version is the entry version token for conditional operations.
	Version uint64

	// Count limits a bulk get. Zero asks for every entry.
	Count uint64
}

// NewRequest creates a new request for op.
//
// Use the Add* methods to fill the operation arguments:
//
//	req := NewRequest(OpcodePut, []byte("k")).AddValue([]byte("v")).AddLifespan(time.Minute)
//	req := NewRequest(OpcodeRemoveIfVersion, []byte("k")).AddVersion(v).AddReturnPrevious()
//	req := NewRequest(OpcodeBulkGet, nil).AddCount(10)
func NewRequest(op Opcode, key []byte) *Request {
	return &Request{
		Opcode: op,
		Key:    key,
	}
}

// Header returns the preamble of the request.
func (r *Request) Header() RequestHeader {
	return RequestHeader{
		MessageID: r.MessageID,
		Opcode:    r.Opcode,
		CacheName: r.CacheName,
		Flags:     r.Flags,
	}
}

// WantsPrevious reports whether the return previous flag is set.
func (r *Request) WantsPrevious() bool {
	return r.Flags.Has(FlagReturnPrevious)
}

// --- Argument methods ---
// All Add* methods return *Request for fluent chaining.

func (r *Request) AddValue(value []byte) *Request     { r.Value = value; return r }
func (r *Request) AddVersion(version uint64) *Request { r.Version = version; return r }
func (r *Request) AddCount(count uint64) *Request     { r.Count = count; return r }
func (r *Request) AddCacheName(name string) *Request  { r.CacheName = name; return r }
func (r *Request) AddMessageID(id uint64) *Request    { r.MessageID = id; return r }
func (r *Request) AddReturnPrevious() *Request {
	r.Flags |= FlagReturnPrevious
	return r
}

// AddLifespan sets the lifespan in whole seconds, rounding a fraction up so
// that a short lifespan never becomes 0 (no expiration). A negative duration
// wraps to a value the encoder rejects.
func (r *Request) AddLifespan(d time.Duration) *Request {
	r.Lifespan = durationSeconds(d)
	return r
}

// AddMaxIdle sets the max idle time in whole seconds, rounded up.
func (r *Request) AddMaxIdle(d time.Duration) *Request {
	r.MaxIdle = durationSeconds(d)
	return r
}

func durationSeconds(d time.Duration) uint64 {
	// Rounded away from zero so a sub-second duration never encodes as 0.
	secs := d / time.Second
	switch rem := d % time.Second; {
	case rem > 0:
		secs++
	case rem < 0:
		secs--
	}
	return uint64(int64(secs))
}
