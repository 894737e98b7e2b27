package protocol

// Magic identifies the direction of a frame.
type Magic uint8

const (
	// MagicRequest starts every request frame.
	MagicRequest = Magic(0xA0)

	// MagicResponse starts every response frame.
	MagicResponse = Magic(0xA1)
)

// Version is the protocol version sent in every request header.
const Version = 10

// Fixed request header fields. This client never asks for topology or hash
// information and never runs inside a transaction.
const (
	ClientIntelligenceBasic = 0x01
	TopologyID              = 0x00
	TransactionType         = 0x00
)

// Flags is the request flag bitmask.
type Flags uint8

const (
	// FlagReturnPrevious asks the server to send back the value that was
	// replaced or removed by a write.
	FlagReturnPrevious = Flags(0x01)
)

// Has reports whether all bits of flag are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// Size limits.
const (
	// MaxVInt bounds every length prefix and every unsigned 32-bit field
	// (lifespan, max idle, bulk count).
	MaxVInt = 0xFFFFFFFF

	// MaxVLong bounds the message id. The counter wraps to 0 past it.
	MaxVLong = 1<<63 - 1
)

// Fixed-size wire fields.
const (
	// ResponseHeaderLen is magic, message id, opcode, status and topology mark.
	ResponseHeaderLen = 5

	// VersionLen is the size of the big-endian entry version token.
	VersionLen = 8
)

// TopologyMarkNoChange is the only topology marker this client accepts.
const TopologyMarkNoChange = 0x00

// Bulk get entry continuation markers.
const (
	bulkEnd  = 0x00
	bulkMore = 0x01
)
