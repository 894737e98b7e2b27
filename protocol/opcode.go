package protocol

import "encoding/hex"

// Opcode selects the operation a request performs, or the body shape of a
// response.
type Opcode uint8

// Request opcodes.
const (
	OpcodePut              = Opcode(0x01)
	OpcodeGet              = Opcode(0x03)
	OpcodePutIfAbsent      = Opcode(0x05)
	OpcodeReplace          = Opcode(0x07)
	OpcodeReplaceIfVersion = Opcode(0x09)
	OpcodeRemove           = Opcode(0x0B)
	OpcodeRemoveIfVersion  = Opcode(0x0D)
	OpcodeContainsKey      = Opcode(0x0F)
	OpcodeGetWithVersion   = Opcode(0x11)
	OpcodeClear            = Opcode(0x13)
	OpcodeStats            = Opcode(0x15)
	OpcodePing             = Opcode(0x17)
	OpcodeBulkGet          = Opcode(0x19)
)

// Response opcodes. Each is its request opcode plus one.
const (
	OpcodePutResponse              = Opcode(0x02)
	OpcodeGetResponse              = Opcode(0x04)
	OpcodePutIfAbsentResponse      = Opcode(0x06)
	OpcodeReplaceResponse          = Opcode(0x08)
	OpcodeReplaceIfVersionResponse = Opcode(0x0A)
	OpcodeRemoveResponse           = Opcode(0x0C)
	OpcodeRemoveIfVersionResponse  = Opcode(0x0E)
	OpcodeContainsKeyResponse      = Opcode(0x10)
	OpcodeGetWithVersionResponse   = Opcode(0x12)
	OpcodeClearResponse            = Opcode(0x14)
	OpcodeStatsResponse            = Opcode(0x16)
	OpcodePingResponse             = Opcode(0x18)
	OpcodeBulkGetResponse          = Opcode(0x1A)

	// OpcodeError is sent instead of the operation's response opcode when
	// the server failed to execute the request.
	OpcodeError = Opcode(0x50)
)

// RequestOpcodes lists every request opcode in wire order.
var RequestOpcodes = []Opcode{
	OpcodePut,
	OpcodeGet,
	OpcodePutIfAbsent,
	OpcodeReplace,
	OpcodeReplaceIfVersion,
	OpcodeRemove,
	OpcodeRemoveIfVersion,
	OpcodeContainsKey,
	OpcodeGetWithVersion,
	OpcodeClear,
	OpcodeStats,
	OpcodePing,
	OpcodeBulkGet,
}

// Response returns the response opcode paired with a request opcode.
func (op Opcode) Response() Opcode {
	return op + 1
}

// IsRequest reports whether op is a known request opcode.
func (op Opcode) IsRequest() bool {
	return requestCodecs[op] != nil
}

// IsResponse reports whether op is a known response opcode, including the
// error opcode.
func (op Opcode) IsResponse() bool {
	return op == OpcodeError || responseCodecs[op] != nil
}

// Name returns the operation name of a request or response opcode.
func (op Opcode) Name() string {
	switch op {
	case OpcodePut, OpcodePutResponse:
		return "put"
	case OpcodeGet, OpcodeGetResponse:
		return "get"
	case OpcodePutIfAbsent, OpcodePutIfAbsentResponse:
		return "putIfAbsent"
	case OpcodeReplace, OpcodeReplaceResponse:
		return "replace"
	case OpcodeReplaceIfVersion, OpcodeReplaceIfVersionResponse:
		return "replaceIfVersion"
	case OpcodeRemove, OpcodeRemoveResponse:
		return "remove"
	case OpcodeRemoveIfVersion, OpcodeRemoveIfVersionResponse:
		return "removeIfVersion"
	case OpcodeContainsKey, OpcodeContainsKeyResponse:
		return "containsKey"
	case OpcodeGetWithVersion, OpcodeGetWithVersionResponse:
		return "getWithVersion"
	case OpcodeClear, OpcodeClearResponse:
		return "clear"
	case OpcodeStats, OpcodeStatsResponse:
		return "stats"
	case OpcodePing, OpcodePingResponse:
		return "ping"
	case OpcodeBulkGet, OpcodeBulkGetResponse:
		return "bulkGet"
	case OpcodeError:
		return "error"
	}

	return "x" + hex.EncodeToString([]byte{byte(op)})
}

// String returns the opcode name, marking response opcodes.
func (op Opcode) String() string {
	if op != OpcodeError && responseCodecs[op] != nil {
		return op.Name() + "Response"
	}
	return op.Name()
}
