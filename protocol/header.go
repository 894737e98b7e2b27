package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// RequestHeader is the preamble written before every request payload.
//
// Wire layout:
//
//	MAGIC(1) VARINT(msg id) VERSION(1) OPCODE(1) CACHE_NAME FLAGS(1)
//	CLIENT_INTELLIGENCE(1) TOPOLOGY_ID(1) TX_TYPE(1)
//
// CACHE_NAME is a single 0x00 for the default cache, otherwise a varint
// length followed by the name bytes.
type RequestHeader struct {
	MessageID uint64
	Opcode    Opcode
	CacheName string
	Flags     Flags
}

// AppendTo appends the encoded header to dst.
func (h RequestHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(MagicRequest))
	dst = AppendVarint(dst, h.MessageID)
	dst = append(dst, Version, byte(h.Opcode))
	dst = AppendVarint(dst, uint64(len(h.CacheName)))
	dst = append(dst, h.CacheName...)
	return append(dst, byte(h.Flags), ClientIntelligenceBasic, TopologyID, TransactionType)
}

// ReadRequestHeader reads a request preamble. It is the server side
// counterpart of RequestHeader.AppendTo.
func ReadRequestHeader(r *bufio.Reader) (RequestHeader, error) {
	var h RequestHeader

	magic, err := r.ReadByte()
	if err != nil {
		return h, readError(err)
	}
	if Magic(magic) != MagicRequest {
		return h, &DecodeError{Message: fmt.Sprintf("invalid request magic 0x%02x", magic)}
	}

	if h.MessageID, err = ReadVarint(r); err != nil {
		return h, err
	}

	var fixed [2]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return h, readError(err)
	}
	if fixed[0] != Version {
		return h, &DecodeError{Message: fmt.Sprintf("unsupported version %d", fixed[0])}
	}
	h.Opcode = Opcode(fixed[1])

	name, err := readBytes(r)
	if err != nil {
		return h, err
	}
	h.CacheName = string(name)

	var tail [4]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return h, readError(err)
	}
	h.Flags = Flags(tail[0])

	return h, nil
}

// ResponseHeader is the fixed 5-byte preamble of every response.
//
// The message id is a single byte and is not checked against the request.
type ResponseHeader struct {
	Magic        Magic
	MessageID    byte
	Opcode       Opcode
	Status       Status
	TopologyMark byte
}

// AppendTo appends the encoded header to dst.
func (h ResponseHeader) AppendTo(dst []byte) []byte {
	return append(dst, byte(h.Magic), h.MessageID, byte(h.Opcode), byte(h.Status), h.TopologyMark)
}

// ReadResponseHeader reads exactly ResponseHeaderLen bytes from r.
//
// A stream that ends before the header is complete returns a ConnectionError
// wrapping ErrConnectionClosed. A wrong magic byte returns an
// InvalidMagicError and the connection must not be reused.
func ReadResponseHeader(r io.Reader) (ResponseHeader, error) {
	var buf [ResponseHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ResponseHeader{}, readError(err)
	}

	h := ResponseHeader{
		Magic:        Magic(buf[0]),
		MessageID:    buf[1],
		Opcode:       Opcode(buf[2]),
		Status:       Status(buf[3]),
		TopologyMark: buf[4],
	}
	if h.Magic != MagicResponse {
		return h, &InvalidMagicError{Magic: h.Magic}
	}

	return h, nil
}
